package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/testutil"
)

func TestMarshal_InvoicesGolden(t *testing.T) {
	docs, errs := BuildInvoices([]commerce.Order{testutil.NewOrder(7), variationOrder(5)}, testInvoiceOpts)
	require.Empty(t, errs)

	out, err := Marshal(Invoices, docs)
	require.NoError(t, err)
	testutil.AssertGolden(t, "invoices_batch", out)
}

func TestMarshal_PaymentsGolden(t *testing.T) {
	docs, errs := BuildPayments([]commerce.Payment{testutil.NewPayment(9, 5, "inv-abc")}, testPaymentOpts)
	require.Empty(t, errs)

	out, err := Marshal(Payments, docs)
	require.NoError(t, err)
	testutil.AssertGolden(t, "payments_batch", out)
}

func TestMarshal_Deterministic(t *testing.T) {
	docs, _ := BuildInvoices([]commerce.Order{testutil.NewOrder(1), testutil.NewOrder(2)}, testInvoiceOpts)

	first, err := Marshal(Invoices, docs)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(Invoices, docs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshal_EscapesText(t *testing.T) {
	o := testutil.NewOrder(1)
	o.Buyer = "Smith & <Sons>"

	docs, errs := BuildInvoices([]commerce.Order{o}, testInvoiceOpts)
	require.Empty(t, errs)
	out, err := Marshal(Invoices, docs)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<Name>Smith &amp; &lt;Sons&gt;</Name>")
}

func TestMarshal_MixedBatch(t *testing.T) {
	invoices, _ := BuildInvoices([]commerce.Order{testutil.NewOrder(1)}, testInvoiceOpts)
	payments, _ := BuildPayments([]commerce.Payment{testutil.NewPayment(1, 1, "inv-1")}, testPaymentOpts)

	_, err := Marshal(Invoices, append(invoices, payments...))
	assert.ErrorIs(t, err, ErrMixedBatch)

	_, err = Marshal(Collection("Contacts"), invoices)
	assert.Error(t, err)
}

func TestMarshal_EmptyBatch(t *testing.T) {
	out, err := Marshal(Payments, nil)
	require.NoError(t, err)
	assert.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Payments></Payments>", string(out))
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	invoices, _ := BuildInvoices([]commerce.Order{testutil.NewOrder(7), variationOrder(5)}, testInvoiceOpts)
	payments, _ := BuildPayments([]commerce.Payment{testutil.NewPayment(9, 5, "inv-abc")}, testPaymentOpts)

	for _, batch := range []struct {
		collection Collection
		docs       []Document
	}{
		{Invoices, invoices},
		{Payments, payments},
	} {
		t.Run(string(batch.collection), func(t *testing.T) {
			data, err := Marshal(batch.collection, batch.docs)
			require.NoError(t, err)

			decoded, err := Unmarshal(batch.collection, data)
			require.NoError(t, err)
			require.Len(t, decoded, len(batch.docs))
			for _, d := range decoded {
				assert.NoError(t, d.Validate())
			}

			again, err := Marshal(batch.collection, decoded)
			require.NoError(t, err)
			assert.Equal(t, string(data), string(again))
		})
	}
}

func TestUnmarshal_WrongRoot(t *testing.T) {
	_, err := Unmarshal(Invoices, []byte(`<Payments></Payments>`))
	assert.Error(t, err)
}
