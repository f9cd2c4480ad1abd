// Package importer loads shop orders and payments from a YAML fixture into a
// local store. It backs the import command used for demos against the
// sandbox ledger.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgersync/internal/commerce"
)

// Inserter is implemented by both store backends. Inserts are idempotent:
// a record whose ID already exists is left untouched and reported as not
// inserted.
type Inserter interface {
	InsertOrder(ctx context.Context, o commerce.Order) (inserted bool, err error)
	InsertPayment(ctx context.Context, p commerce.Payment) (inserted bool, err error)
}

// File is the fixture document.
type File struct {
	Orders   []OrderRecord   `yaml:"orders"`
	Payments []PaymentRecord `yaml:"payments"`
}

type OrderRecord struct {
	ID               int64            `yaml:"id"`
	Status           string           `yaml:"status"`
	OrderedOn        string           `yaml:"ordered_on"` // RFC 3339
	Buyer            string           `yaml:"buyer"`
	Currency         string           `yaml:"currency"`
	Items            []ItemRecord     `yaml:"items"`
	Modifiers        []ModifierRecord `yaml:"modifiers"`
	RemoteInvoiceRef string           `yaml:"remote_invoice_ref"`
}

type ItemRecord struct {
	Product   string `yaml:"product"`
	Variation bool   `yaml:"variation"`
	Options   string `yaml:"options"`
	Quantity  int    `yaml:"quantity"`
	Price     string `yaml:"price"`
	TaxType   string `yaml:"tax_type"`
}

type ModifierRecord struct {
	Description string `yaml:"description"`
	Amount      string `yaml:"amount"`
	TaxType     string `yaml:"tax_type"`
}

type PaymentRecord struct {
	ID               int64  `yaml:"id"`
	OrderID          int64  `yaml:"order_id"`
	Created          string `yaml:"created"` // RFC 3339
	Amount           string `yaml:"amount"`
	RemotePaymentRef string `yaml:"remote_payment_ref"`
}

// Summary counts what Load did.
type Summary struct {
	OrdersInserted   int `json:"orders_inserted"`
	OrdersSkipped    int `json:"orders_skipped"`
	PaymentsInserted int `json:"payments_inserted"`
	PaymentsSkipped  int `json:"payments_skipped"`
}

// Decode parses a fixture. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Records converts the fixture into domain records, reporting every invalid
// field at once.
func (f *File) Records() ([]commerce.Order, []commerce.Payment, error) {
	var errs []error
	orders := make([]commerce.Order, 0, len(f.Orders))
	for i, r := range f.Orders {
		o, err := r.order()
		if err != nil {
			errs = append(errs, fmt.Errorf("orders[%d] (id %d): %w", i, r.ID, err))
			continue
		}
		orders = append(orders, o)
	}
	payments := make([]commerce.Payment, 0, len(f.Payments))
	for i, r := range f.Payments {
		p, err := r.payment()
		if err != nil {
			errs = append(errs, fmt.Errorf("payments[%d] (id %d): %w", i, r.ID, err))
			continue
		}
		payments = append(payments, p)
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	return orders, payments, nil
}

func (r OrderRecord) order() (commerce.Order, error) {
	var errs []error
	if r.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	orderedOn, err := time.Parse(time.RFC3339, r.OrderedOn)
	if err != nil {
		errs = append(errs, fmt.Errorf("ordered_on: %w", err))
	}

	o := commerce.Order{
		ID:               r.ID,
		Status:           r.Status,
		OrderedOn:        orderedOn,
		Buyer:            r.Buyer,
		Currency:         r.Currency,
		RemoteInvoiceRef: r.RemoteInvoiceRef,
	}
	for i, it := range r.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("items[%d].price: %w", i, err))
		}
		o.Items = append(o.Items, commerce.LineItem{
			Product: commerce.Purchasable{
				ProductTitle:  it.Product,
				IsVariation:   it.Variation,
				OptionSummary: it.Options,
			},
			Quantity: it.Quantity,
			Price:    price,
			TaxType:  it.TaxType,
		})
	}
	for i, m := range r.Modifiers {
		amount, err := decimal.NewFromString(m.Amount)
		if err != nil {
			errs = append(errs, fmt.Errorf("modifiers[%d].amount: %w", i, err))
		}
		o.Modifiers = append(o.Modifiers, commerce.Modifier{
			Description: m.Description,
			Amount:      amount,
			TaxType:     m.TaxType,
		})
	}
	return o, errors.Join(errs...)
}

func (r PaymentRecord) payment() (commerce.Payment, error) {
	var errs []error
	if r.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	created, err := time.Parse(time.RFC3339, r.Created)
	if err != nil {
		errs = append(errs, fmt.Errorf("created: %w", err))
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		errs = append(errs, fmt.Errorf("amount: %w", err))
	}
	return commerce.Payment{
		ID:               r.ID,
		OrderID:          r.OrderID,
		Created:          created,
		Amount:           amount,
		RemotePaymentRef: r.RemotePaymentRef,
	}, errors.Join(errs...)
}

// Load inserts every record of f into dst, orders first so payments can
// reference them. Records that already exist are skipped.
func Load(ctx context.Context, dst Inserter, f *File, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	orders, payments, err := f.Records()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, o := range orders {
		inserted, err := dst.InsertOrder(ctx, o)
		if err != nil {
			return sum, fmt.Errorf("import order %d: %w", o.ID, err)
		}
		if inserted {
			sum.OrdersInserted++
		} else {
			logger.Debug("order already present", "order_id", o.ID)
			sum.OrdersSkipped++
		}
	}
	for _, p := range payments {
		inserted, err := dst.InsertPayment(ctx, p)
		if err != nil {
			return sum, fmt.Errorf("import payment %d: %w", p.ID, err)
		}
		if inserted {
			sum.PaymentsInserted++
		} else {
			logger.Debug("payment already present", "payment_id", p.ID)
			sum.PaymentsSkipped++
		}
	}
	return sum, nil
}
