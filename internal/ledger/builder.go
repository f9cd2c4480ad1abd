package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ledgersync/internal/commerce"
)

// InvoiceOptions configures BuildInvoices.
type InvoiceOptions struct {
	Prefix      string // correlation prefix for InvoiceNumber
	AccountCode string // sales account for every line
	Currency    string // shop base currency
}

// PaymentOptions configures BuildPayments.
type PaymentOptions struct {
	Prefix      string // correlation prefix for Reference
	AccountCode string // account the payment is received into
}

// BuildInvoices turns eligible orders into invoice documents, preserving
// input order.
//
// Orders that are not eligible, or whose document fails validation, are left
// out and reported as *RecordError values in the second return. An empty
// document slice means there is nothing to submit.
func BuildInvoices(orders []commerce.Order, opts InvoiceOptions) ([]Document, []error) {
	var docs []Document
	var errs []error
	for _, o := range orders {
		inv, err := buildInvoice(o, opts)
		if err != nil {
			errs = append(errs, &RecordError{Kind: KindInvoice, ID: o.ID, Err: err})
			continue
		}
		docs = append(docs, inv)
	}
	return docs, errs
}

func buildInvoice(o commerce.Order, opts InvoiceOptions) (*Invoice, error) {
	if !o.Eligible() {
		return nil, ErrIneligible
	}

	ref := NewCorrelation(opts.Prefix, o.ID)
	inv := &Invoice{
		Type:            InvoiceTypeReceivable,
		InvoiceNumber:   ref.Token(),
		Contact:         Contact{Name: o.Buyer},
		Date:            Timestamp(o.OrderedOn),
		DueDate:         Timestamp(o.OrderedOn),
		Status:          InvoiceStatusAuthorised,
		LineAmountTypes: LineAmountsExclusive,
		CurrencyCode:    opts.Currency,
		ref:             ref,
	}

	for _, item := range o.Items {
		inv.LineItems = append(inv.LineItems, LineItem{
			Description: describe(item.Product),
			Quantity:    decimal.NewFromInt(int64(item.Quantity)),
			UnitAmount:  item.Price,
			AccountCode: opts.AccountCode,
			TaxType:     item.TaxType,
		})
	}
	for _, m := range o.Modifiers {
		if !m.Taxable() {
			continue
		}
		inv.LineItems = append(inv.LineItems, LineItem{
			Description: m.Description,
			Quantity:    decimal.NewFromInt(1),
			UnitAmount:  m.Amount,
			AccountCode: opts.AccountCode,
			TaxType:     m.TaxType,
		})
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func describe(p commerce.Purchasable) string {
	if p.IsVariation {
		return StripMarkup(p.ProductTitle + " " + p.OptionSummary)
	}
	return p.ProductTitle
}

// BuildPayments turns eligible payments into payment documents, preserving
// input order. Ineligible or invalid payments are reported like in BuildInvoices.
func BuildPayments(payments []commerce.Payment, opts PaymentOptions) ([]Document, []error) {
	var docs []Document
	var errs []error
	for _, p := range payments {
		doc, err := buildPayment(p, opts)
		if err != nil {
			errs = append(errs, &RecordError{Kind: KindPayment, ID: p.ID, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

func buildPayment(p commerce.Payment, opts PaymentOptions) (*Payment, error) {
	if !p.Eligible() {
		return nil, ErrIneligible
	}

	ref := NewCorrelation(opts.Prefix, p.ID)
	doc := &Payment{
		Invoice:   InvoiceRef{InvoiceID: p.InvoiceRef},
		Account:   AccountRef{Code: opts.AccountCode},
		Date:      Date(truncateToDay(p.Created)),
		Amount:    p.Amount,
		Reference: ref.Token(),
		ref:       ref,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
