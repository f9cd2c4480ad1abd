package commerce

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received against an order.
//
// InvoiceRef carries the owning order's RemoteInvoiceRef as it was when the
// payment was loaded; a payment can only be synced once it is non-empty.
type Payment struct {
	ID               int64
	OrderID          int64
	Created          time.Time
	Amount           decimal.Decimal
	RemotePaymentRef string
	InvoiceRef       string
}

func (p Payment) Synced() bool {
	return p.RemotePaymentRef != ""
}

// Eligible mirrors the repository's "unsynced payments" query.
func (p Payment) Eligible() bool {
	return !p.Synced() && p.InvoiceRef != ""
}

// Repository is the read/write surface of the local shop store used by the sync core.
//
// The Set* methods only write when the record's remote reference is still empty.
// They return ErrNotFound for unknown IDs and ErrAlreadySynced when a reference
// is already present.
type Repository interface {
	UnsyncedOrders(ctx context.Context) ([]Order, error)
	UnsyncedPayments(ctx context.Context) ([]Payment, error)
	SetOrderInvoiceRef(ctx context.Context, orderID int64, ref string) error
	SetPaymentRef(ctx context.Context, paymentID int64, ref string) error
}
