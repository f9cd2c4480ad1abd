package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ledgersync/internal/commerce"
)

// OrderedOn is the timestamp used by NewOrder.
var OrderedOn = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

// NewOrder returns a paid, unsynced order with one base product line and one
// taxable shipping modifier.
func NewOrder(id int64) commerce.Order {
	return commerce.Order{
		ID:        id,
		Status:    "Paid",
		OrderedOn: OrderedOn,
		Buyer:     "Ada Lovelace",
		Currency:  "NZD",
		Items: []commerce.LineItem{
			{
				Product:  commerce.Purchasable{ProductTitle: "Analytical Engine Poster"},
				Quantity: 2,
				Price:    decimal.RequireFromString("19.95"),
				TaxType:  "OUTPUT2",
			},
		},
		Modifiers: []commerce.Modifier{
			{Description: "Shipping", Amount: decimal.RequireFromString("7.50"), TaxType: "OUTPUT2"},
		},
	}
}

// NewPayment returns an unsynced payment for an order that already has
// remote invoice invoiceRef.
func NewPayment(id, orderID int64, invoiceRef string) commerce.Payment {
	return commerce.Payment{
		ID:         id,
		OrderID:    orderID,
		Created:    OrderedOn.Add(90 * time.Minute),
		Amount:     decimal.RequireFromString("47.40"),
		InvoiceRef: invoiceRef,
	}
}
