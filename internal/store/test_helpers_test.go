package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedOrder inserts testutil.NewOrder(id) and fails the test on error.
func seedOrder(t *testing.T, s *Store, id int64) commerce.Order {
	t.Helper()
	o := testutil.NewOrder(id)
	if _, err := s.InsertOrder(context.Background(), o); err != nil {
		t.Fatalf("InsertOrder(%d) failed: %v", id, err)
	}
	return o
}

func seedPayment(t *testing.T, s *Store, id, orderID int64) commerce.Payment {
	t.Helper()
	p := testutil.NewPayment(id, orderID, "")
	if _, err := s.InsertPayment(context.Background(), p); err != nil {
		t.Fatalf("InsertPayment(%d) failed: %v", id, err)
	}
	return p
}
