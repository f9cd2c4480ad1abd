package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/testutil"
)

func TestSetOrderInvoiceRef_WriteOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedOrder(t, s, 1)

	require.NoError(t, s.SetOrderInvoiceRef(ctx, 1, "INV-A"))

	err := s.SetOrderInvoiceRef(ctx, 1, "INV-B")
	assert.ErrorIs(t, err, commerce.ErrAlreadySynced)

	o, err := s.Order(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-A", o.RemoteInvoiceRef, "second write must not overwrite")
}

func TestSetOrderInvoiceRef_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedOrder(t, s, 1)

	assert.ErrorIs(t, s.SetOrderInvoiceRef(ctx, 42, "INV-X"), commerce.ErrNotFound)
	assert.Error(t, s.SetOrderInvoiceRef(ctx, 1, ""))

	o, err := s.Order(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, o.RemoteInvoiceRef)
}

func TestSetPaymentRef_WriteOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedOrder(t, s, 1)
	seedPayment(t, s, 10, 1)

	require.NoError(t, s.SetPaymentRef(ctx, 10, "PAY-A"))
	assert.ErrorIs(t, s.SetPaymentRef(ctx, 10, "PAY-B"), commerce.ErrAlreadySynced)
	assert.ErrorIs(t, s.SetPaymentRef(ctx, 11, "PAY-C"), commerce.ErrNotFound)

	p, err := s.Payment(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "PAY-A", p.RemotePaymentRef)
}

func TestSetOrderInvoiceRef_ConcurrentWritersOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedOrder(t, s, 1)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SetOrderInvoiceRef(ctx, 1, "INV-"+string(rune('A'+i)))
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, commerce.ErrAlreadySynced):
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, already)
}

func TestInsertOrder_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	o := testutil.NewOrder(1)
	inserted, err := s.InsertOrder(ctx, o)
	require.NoError(t, err)
	assert.True(t, inserted)

	o.Buyer = "Someone Else"
	inserted, err = s.InsertOrder(ctx, o)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.UnsyncedOrders(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada Lovelace", got[0].Buyer)
	assert.Len(t, got[0].Items, 1, "items must not be duplicated")
}

func TestInsertOrder_PreSynced(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	o := testutil.NewOrder(1)
	o.RemoteInvoiceRef = "INV-1"
	_, err := s.InsertOrder(ctx, o)
	require.NoError(t, err)

	got, err := s.UnsyncedOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertPayment_RequiresOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertPayment(ctx, testutil.NewPayment(10, 99, ""))
	assert.Error(t, err, "foreign key must reject unknown order")

	seedOrder(t, s, 1)
	inserted, err := s.InsertPayment(ctx, testutil.NewPayment(10, 1, ""))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertPayment(ctx, testutil.NewPayment(10, 1, ""))
	require.NoError(t, err)
	assert.False(t, inserted)
}
