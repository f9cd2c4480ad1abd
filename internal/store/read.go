package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ledgersync/internal/commerce"
)

// UnsyncedOrders returns orders without a remote invoice that are not carts,
// with their line items and modifiers, ordered by ID.
//
// Returns an empty slice (not nil) when nothing is pending.
func (s *Store) UnsyncedOrders(ctx context.Context) ([]commerce.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, ordered_on, buyer, currency
		FROM orders
		WHERE remote_invoice_ref IS NULL AND status <> ?
		ORDER BY id ASC
	`, commerce.StatusCart)
	if err != nil {
		return nil, fmt.Errorf("query unsynced orders: %w", err)
	}
	defer rows.Close()

	orders := []commerce.Order{}
	index := make(map[int64]int)
	for rows.Next() {
		var o commerce.Order
		var orderedOn string
		if err := rows.Scan(&o.ID, &o.Status, &orderedOn, &o.Buyer, &o.Currency); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.OrderedOn, err = unmarshalTime(orderedOn); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.ID, err)
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := s.attachItems(ctx, orders, index); err != nil {
		return nil, err
	}
	if err := s.attachModifiers(ctx, orders, index); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []commerce.Order, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.order_id, i.product_title, i.is_variation, i.option_summary, i.quantity, i.price, i.tax_type
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.remote_invoice_ref IS NULL AND o.status <> ?
		ORDER BY i.order_id ASC, i.position ASC
	`, commerce.StatusCart)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item commerce.LineItem
		var price string
		if err := rows.Scan(&orderID, &item.Product.ProductTitle, &item.Product.IsVariation,
			&item.Product.OptionSummary, &item.Quantity, &price, &item.TaxType); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if item.Price, err = unmarshalMoney(price); err != nil {
			return fmt.Errorf("order %d item: %w", orderID, err)
		}
		// Rows for orders synced between the two queries are ignored.
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

func (s *Store) attachModifiers(ctx context.Context, orders []commerce.Order, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.order_id, m.description, m.amount, m.tax_type
		FROM order_modifiers m
		JOIN orders o ON o.id = m.order_id
		WHERE o.remote_invoice_ref IS NULL AND o.status <> ?
		ORDER BY m.order_id ASC, m.position ASC
	`, commerce.StatusCart)
	if err != nil {
		return fmt.Errorf("query order modifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var m commerce.Modifier
		var amount string
		if err := rows.Scan(&orderID, &m.Description, &amount, &m.TaxType); err != nil {
			return fmt.Errorf("scan order modifier: %w", err)
		}
		if m.Amount, err = unmarshalMoney(amount); err != nil {
			return fmt.Errorf("order %d modifier: %w", orderID, err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Modifiers = append(orders[i].Modifiers, m)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order modifiers: %w", err)
	}
	return nil
}

// UnsyncedPayments returns payments without a remote reference whose order
// already has a remote invoice, ordered by ID. InvoiceRef is filled from the order.
func (s *Store) UnsyncedPayments(ctx context.Context) ([]commerce.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.order_id, p.created, p.amount, o.remote_invoice_ref
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NOT NULL
		ORDER BY p.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced payments: %w", err)
	}
	defer rows.Close()

	payments := []commerce.Payment{}
	for rows.Next() {
		var p commerce.Payment
		var created, amount string
		if err := rows.Scan(&p.ID, &p.OrderID, &created, &amount, &p.InvoiceRef); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Created, err = unmarshalTime(created); err != nil {
			return nil, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		if p.Amount, err = unmarshalMoney(amount); err != nil {
			return nil, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// Order returns a single order by ID regardless of sync state, without
// items or modifiers.
func (s *Store) Order(ctx context.Context, id int64) (commerce.Order, error) {
	var o commerce.Order
	var orderedOn string
	var ref sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, ordered_on, buyer, currency, remote_invoice_ref
		FROM orders WHERE id = ?
	`, id).Scan(&o.ID, &o.Status, &orderedOn, &o.Buyer, &o.Currency, &ref)
	if err == sql.ErrNoRows {
		return commerce.Order{}, fmt.Errorf("order %d: %w", id, commerce.ErrNotFound)
	}
	if err != nil {
		return commerce.Order{}, fmt.Errorf("read order %d: %w", id, err)
	}
	if o.OrderedOn, err = unmarshalTime(orderedOn); err != nil {
		return commerce.Order{}, fmt.Errorf("order %d: %w", id, err)
	}
	o.RemoteInvoiceRef = ref.String
	return o, nil
}

// Payment returns a single payment by ID regardless of sync state.
func (s *Store) Payment(ctx context.Context, id int64) (commerce.Payment, error) {
	var p commerce.Payment
	var created, amount string
	var ref, invoiceRef sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.order_id, p.created, p.amount, p.remote_payment_ref, o.remote_invoice_ref
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.id = ?
	`, id).Scan(&p.ID, &p.OrderID, &created, &amount, &ref, &invoiceRef)
	if err == sql.ErrNoRows {
		return commerce.Payment{}, fmt.Errorf("payment %d: %w", id, commerce.ErrNotFound)
	}
	if err != nil {
		return commerce.Payment{}, fmt.Errorf("read payment %d: %w", id, err)
	}
	if p.Created, err = unmarshalTime(created); err != nil {
		return commerce.Payment{}, fmt.Errorf("payment %d: %w", id, err)
	}
	if p.Amount, err = unmarshalMoney(amount); err != nil {
		return commerce.Payment{}, fmt.Errorf("payment %d: %w", id, err)
	}
	p.RemotePaymentRef = ref.String
	p.InvoiceRef = invoiceRef.String
	return p, nil
}

// PendingCounts reports how many records the next run would consider.
func (s *Store) PendingCounts(ctx context.Context) (commerce.Pending, error) {
	var p commerce.Pending
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders WHERE remote_invoice_ref IS NULL AND status <> ?),
			(SELECT COUNT(*) FROM payments p JOIN orders o ON o.id = p.order_id
				WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NOT NULL),
			(SELECT COUNT(*) FROM payments p JOIN orders o ON o.id = p.order_id
				WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NULL)
	`, commerce.StatusCart).Scan(&p.Orders, &p.Payments, &p.BlockedPayments)
	if err != nil {
		return commerce.Pending{}, fmt.Errorf("pending counts: %w", err)
	}
	return p, nil
}

// RecentBatches returns up to limit batch log entries, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]commerce.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, documents, status_code, reconciled, error, started_at
		FROM sync_batches
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []commerce.Batch{}
	for rows.Next() {
		var b commerce.Batch
		var startedAt string
		if err := rows.Scan(&b.ID, &b.RunID, &b.Kind, &b.Documents, &b.StatusCode, &b.Reconciled, &b.Error, &startedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if b.StartedAt, err = unmarshalTime(startedAt); err != nil {
			return nil, fmt.Errorf("batch %d: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}
