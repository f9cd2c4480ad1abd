// Package commerce holds the local shop records that ledgersync reads and
// marks as synced: orders with their line items and modifiers, and payments.
//
// The package has no I/O. Persistence lives behind the Repository interface
// (see internal/store and internal/store/postgres).
package commerce

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// StatusCart marks an order that is still a shopping cart. Carts are never synced.
const StatusCart = "Cart"

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadySynced = errors.New("record already synced")
)

// Order is a completed (or in-progress) shop order.
//
// RemoteInvoiceRef is empty until the ledger has accepted the order as an
// invoice. Once set it is never cleared or overwritten.
type Order struct {
	ID               int64
	Status           string
	OrderedOn        time.Time
	Buyer            string
	Currency         string
	Items            []LineItem
	Modifiers        []Modifier
	RemoteInvoiceRef string
}

// Synced reports whether the ledger has already assigned an invoice to the order.
func (o Order) Synced() bool {
	return o.RemoteInvoiceRef != ""
}

// Eligible mirrors the repository's "unsynced orders" query.
func (o Order) Eligible() bool {
	return !o.Synced() && o.Status != StatusCart
}

// Purchasable is the object a line item was bought as: either a base product
// or one of its variations.
type Purchasable struct {
	ProductTitle  string
	IsVariation   bool
	OptionSummary string // variations only, may contain markup
}

// LineItem is one purchased row of an order.
type LineItem struct {
	Product  Purchasable
	Quantity int
	Price    decimal.Decimal
	TaxType  string
}

// Modifier adjusts an order total (shipping, discounts, surcharges).
// Only modifiers carrying a TaxType are sent to the ledger.
type Modifier struct {
	Description string
	Amount      decimal.Decimal
	TaxType     string
}

// Taxable reports whether the modifier carries a tax classification.
func (m Modifier) Taxable() bool {
	return m.TaxType != ""
}
