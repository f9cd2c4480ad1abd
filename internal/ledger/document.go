package ledger

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the document type of a batch.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindPayment Kind = "payment"
)

// Collection returns the remote collection documents of this kind are posted to.
func (k Kind) Collection() Collection {
	switch k {
	case KindInvoice:
		return Invoices
	case KindPayment:
		return Payments
	default:
		return ""
	}
}

// Collection is a remote resource name. It doubles as the root element of
// the batch payload.
type Collection string

const (
	Invoices Collection = "Invoices"
	Payments Collection = "Payments"
)

// Kind returns the document kind stored in the collection.
func (c Collection) Kind() Kind {
	switch c {
	case Invoices:
		return KindInvoice
	case Payments:
		return KindPayment
	default:
		return ""
	}
}

// Fixed invoice attributes.
const (
	InvoiceTypeReceivable   = "ACCREC"
	InvoiceStatusAuthorised = "AUTHORISED"
	LineAmountsExclusive    = "Exclusive"
)

// Wire layouts for dates. Both are locale independent.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05"
)

var (
	// ErrInvalidDocument is wrapped by every validation failure.
	ErrInvalidDocument = errors.New("invalid ledger document")

	// ErrIneligible is returned for records that must not be submitted
	// (already synced, carts, payments of unsynced orders).
	ErrIneligible = errors.New("record not eligible for sync")
)

// Document is the closed union of *Invoice and *Payment.
type Document interface {
	Kind() Kind
	Correlation() Correlation
	Validate() error
	isDocument()
}

// Invoice is a receivable invoice for one order.
type Invoice struct {
	XMLName         xml.Name   `xml:"Invoice"`
	Type            string     `xml:"Type"`
	InvoiceNumber   string     `xml:"InvoiceNumber"`
	Contact         Contact    `xml:"Contact"`
	Date            Timestamp  `xml:"Date"`
	DueDate         Timestamp  `xml:"DueDate"`
	Status          string     `xml:"Status"`
	LineAmountTypes string     `xml:"LineAmountTypes"`
	CurrencyCode    string     `xml:"CurrencyCode"`
	LineItems       []LineItem `xml:"LineItems>LineItem"`

	ref Correlation
}

type Contact struct {
	Name string `xml:"Name"`
}

// LineItem is one invoice row. TaxType is omitted from the payload when empty.
type LineItem struct {
	Description string          `xml:"Description"`
	Quantity    decimal.Decimal `xml:"Quantity"`
	UnitAmount  decimal.Decimal `xml:"UnitAmount"`
	AccountCode string          `xml:"AccountCode"`
	TaxType     string          `xml:"TaxType,omitempty"`
}

func (*Invoice) Kind() Kind { return KindInvoice }
func (i *Invoice) Correlation() Correlation { return i.ref }
func (*Invoice) isDocument() {}

// Validate checks the fields the remote requires.
func (i *Invoice) Validate() error {
	switch {
	case i.InvoiceNumber == "":
		return invalid("invoice number is empty")
	case i.Contact.Name == "":
		return invalid("contact name is empty")
	case time.Time(i.Date).IsZero():
		return invalid("invoice date is missing")
	case len(i.CurrencyCode) != 3:
		return invalid("currency code %q is not a 3-letter code", i.CurrencyCode)
	case len(i.LineItems) == 0:
		return invalid("invoice has no line items")
	}
	for n, li := range i.LineItems {
		if li.Description == "" {
			return invalid("line item %d: description is empty", n)
		}
		if li.AccountCode == "" {
			return invalid("line item %d: account code is empty", n)
		}
		if !li.Quantity.IsPositive() {
			return invalid("line item %d: quantity %s is not positive", n, li.Quantity)
		}
	}
	return nil
}

// Payment applies money to an invoice that already exists remotely.
type Payment struct {
	XMLName   xml.Name        `xml:"Payment"`
	Invoice   InvoiceRef      `xml:"Invoice"`
	Account   AccountRef      `xml:"Account"`
	Date      Date            `xml:"Date"`
	Amount    decimal.Decimal `xml:"Amount"`
	Reference string          `xml:"Reference"`

	ref Correlation
}

type InvoiceRef struct {
	InvoiceID string `xml:"InvoiceID"`
}

type AccountRef struct {
	Code string `xml:"Code"`
}

func (*Payment) Kind() Kind { return KindPayment }
func (p *Payment) Correlation() Correlation { return p.ref }
func (*Payment) isDocument() {}

func (p *Payment) Validate() error {
	switch {
	case p.Invoice.InvoiceID == "":
		return invalid("invoice reference is empty")
	case p.Account.Code == "":
		return invalid("account code is empty")
	case time.Time(p.Date).IsZero():
		return invalid("payment date is missing")
	case !p.Amount.IsPositive():
		return invalid("amount %s is not positive", p.Amount)
	case p.Reference == "":
		return invalid("reference is empty")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Date renders as a calendar day.
type Date time.Time

func (d Date) MarshalText() ([]byte, error) {
	return []byte(time.Time(d).Format(DateLayout)), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	t, err := time.Parse(DateLayout, string(text))
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	*d = Date(t)
	return nil
}

// Timestamp renders as a local wall-clock time without zone.
type Timestamp time.Time

func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(time.Time(ts).Format(TimestampLayout)), nil
}

func (ts *Timestamp) UnmarshalText(text []byte) error {
	t, err := time.Parse(TimestampLayout, string(text))
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	*ts = Timestamp(t)
	return nil
}

// RecordError reports a local record the builder refused to turn into a document.
type RecordError struct {
	Kind Kind
	ID   int64
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
