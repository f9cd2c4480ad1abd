package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledgersync/internal/commerce"
)

var errEmptyRef = errors.New("remote reference is empty")

// SetOrderInvoiceRef records the remote invoice ID on an order.
//
// The update only applies while remote_invoice_ref is NULL. Returns
// commerce.ErrNotFound for unknown orders and commerce.ErrAlreadySynced when
// a reference is already present; neither case modifies the row.
func (s *Store) SetOrderInvoiceRef(ctx context.Context, orderID int64, ref string) error {
	if ref == "" {
		return fmt.Errorf("set order %d invoice ref: %w", orderID, errEmptyRef)
	}
	return s.setRef(ctx, "orders", "remote_invoice_ref", orderID, ref)
}

// SetPaymentRef records the remote payment ID on a payment, with the same
// write-once rules as SetOrderInvoiceRef.
func (s *Store) SetPaymentRef(ctx context.Context, paymentID int64, ref string) error {
	if ref == "" {
		return fmt.Errorf("set payment %d ref: %w", paymentID, errEmptyRef)
	}
	return s.setRef(ctx, "payments", "remote_payment_ref", paymentID, ref)
}

// setRef is shared by both Set methods. table and column are constants from
// this file, never user input.
func (s *Store) setRef(ctx context.Context, table, column string, id int64, ref string) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ? AND %s IS NULL`, table, column, column),
		ref, id,
	)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: rows affected: %w", table, id, err)
	}
	if n == 1 {
		return nil
	}

	var existing sql.NullString
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, column, table), id,
	).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", table, id, commerce.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check %s %d: %w", table, id, err)
	}
	return fmt.Errorf("%s %d already references %q: %w", table, id, existing.String, commerce.ErrAlreadySynced)
}

// InsertOrder stores an order with its items and modifiers in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: an existing order is left
// untouched and inserted=false is returned.
func (s *Store) InsertOrder(ctx context.Context, o commerce.Order) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("insert order: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, status, ordered_on, buyer, currency, remote_invoice_ref)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		o.ID,
		o.Status,
		marshalTime(o.OrderedOn),
		o.Buyer,
		o.Currency,
		nullString(o.RemoteInvoiceRef),
	)
	if err != nil {
		return false, fmt.Errorf("insert order %d: %w", o.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert order %d: rows affected: %w", o.ID, err)
	}
	if n == 0 {
		return false, nil
	}

	for pos, item := range o.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items
			(order_id, position, product_title, is_variation, option_summary, quantity, price, tax_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			o.ID,
			pos,
			item.Product.ProductTitle,
			item.Product.IsVariation,
			item.Product.OptionSummary,
			item.Quantity,
			marshalMoney(item.Price),
			item.TaxType,
		)
		if err != nil {
			return false, fmt.Errorf("insert order %d item %d: %w", o.ID, pos, err)
		}
	}

	for pos, m := range o.Modifiers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_modifiers (order_id, position, description, amount, tax_type)
			VALUES (?, ?, ?, ?, ?)
		`, o.ID, pos, m.Description, marshalMoney(m.Amount), m.TaxType)
		if err != nil {
			return false, fmt.Errorf("insert order %d modifier %d: %w", o.ID, pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("insert order %d: commit: %w", o.ID, err)
	}
	return true, nil
}

// InsertPayment stores a payment. The owning order must exist (foreign key).
// Existing payment IDs are left untouched and reported with inserted=false.
func (s *Store) InsertPayment(ctx context.Context, p commerce.Payment) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, created, amount, remote_payment_ref)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		p.ID,
		p.OrderID,
		marshalTime(p.Created),
		marshalMoney(p.Amount),
		nullString(p.RemotePaymentRef),
	)
	if err != nil {
		return false, fmt.Errorf("insert payment %d: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert payment %d: rows affected: %w", p.ID, err)
	}
	return n == 1, nil
}

// RecordBatch appends an entry to the batch log.
func (s *Store) RecordBatch(ctx context.Context, b commerce.Batch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_batches (run_id, kind, documents, status_code, reconciled, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		b.RunID,
		b.Kind,
		b.Documents,
		b.StatusCode,
		b.Reconciled,
		b.Error,
		marshalTime(b.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}
