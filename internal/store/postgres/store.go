// Package postgres implements the local shop store on PostgreSQL for shops
// whose order data already lives there. It offers the same behaviour as the
// SQLite store in internal/store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/ledgersync/internal/commerce"
)

// runLockID keys the session-level advisory lock held for the length of a sync run.
const runLockID int64 = 731904412

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ commerce.Repository = (*Store)(nil)
	_ commerce.BatchLog   = (*Store)(nil)
	_ commerce.RunLocker  = (*Store)(nil)
)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) UnsyncedOrders(ctx context.Context) ([]commerce.Order, error) {
	rows, err := s.query(ctx, `
SELECT id, status, ordered_on, ordered_on_offset, buyer, currency
FROM orders
WHERE remote_invoice_ref IS NULL AND status <> $1
ORDER BY id`, commerce.StatusCart)
	if err != nil {
		return nil, fmt.Errorf("query unsynced orders: %w", err)
	}

	orders := []commerce.Order{}
	index := make(map[int64]int)
	for rows.Next() {
		var o commerce.Order
		var offset int
		if err := rows.Scan(&o.ID, &o.Status, &o.OrderedOn, &offset, &o.Buyer, &o.Currency); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.OrderedOn = inOffset(o.OrderedOn, offset)
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	itemRows, err := s.query(ctx, `
SELECT order_id, product_title, is_variation, option_summary, quantity, price::text, tax_type
FROM order_items
WHERE order_id = ANY($1)
ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	for itemRows.Next() {
		var orderID int64
		var item commerce.LineItem
		var price string
		if err := itemRows.Scan(&orderID, &item.Product.ProductTitle, &item.Product.IsVariation,
			&item.Product.OptionSummary, &item.Quantity, &price, &item.TaxType); err != nil {
			itemRows.Close()
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.Price, err = parseMoney(price); err != nil {
			itemRows.Close()
			return nil, fmt.Errorf("order %d item: %w", orderID, err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	modRows, err := s.query(ctx, `
SELECT order_id, description, amount::text, tax_type
FROM order_modifiers
WHERE order_id = ANY($1)
ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query order modifiers: %w", err)
	}
	defer modRows.Close()
	for modRows.Next() {
		var orderID int64
		var m commerce.Modifier
		var amount string
		if err := modRows.Scan(&orderID, &m.Description, &amount, &m.TaxType); err != nil {
			return nil, fmt.Errorf("scan order modifier: %w", err)
		}
		if m.Amount, err = parseMoney(amount); err != nil {
			return nil, fmt.Errorf("order %d modifier: %w", orderID, err)
		}
		i := index[orderID]
		orders[i].Modifiers = append(orders[i].Modifiers, m)
	}
	if err := modRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order modifiers: %w", err)
	}
	return orders, nil
}

func (s *Store) UnsyncedPayments(ctx context.Context) ([]commerce.Payment, error) {
	rows, err := s.query(ctx, `
SELECT p.id, p.order_id, p.created, p.created_offset, p.amount::text, o.remote_invoice_ref
FROM payments p
JOIN orders o ON o.id = p.order_id
WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NOT NULL
ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced payments: %w", err)
	}
	defer rows.Close()

	payments := []commerce.Payment{}
	for rows.Next() {
		var p commerce.Payment
		var offset int
		var amount string
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Created, &offset, &amount, &p.InvoiceRef); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Created = inOffset(p.Created, offset)
		if p.Amount, err = parseMoney(amount); err != nil {
			return nil, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (s *Store) SetOrderInvoiceRef(ctx context.Context, orderID int64, ref string) error {
	return s.setRef(ctx, "orders", "remote_invoice_ref", orderID, ref)
}

func (s *Store) SetPaymentRef(ctx context.Context, paymentID int64, ref string) error {
	return s.setRef(ctx, "payments", "remote_payment_ref", paymentID, ref)
}

// setRef writes ref only while the column is NULL. table and column are
// constants from this file.
func (s *Store) setRef(ctx context.Context, table, column string, id int64, ref string) error {
	if ref == "" {
		return fmt.Errorf("set %s %d: remote reference is empty", table, id)
	}
	tag, err := s.exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE id = $1 AND %s IS NULL`, table, column, column),
		id, ref)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var existing *string
	err = s.queryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, column, table), id).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", table, id, commerce.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check %s %d: %w", table, id, err)
	}
	return fmt.Errorf("%s %d already synced: %w", table, id, commerce.ErrAlreadySynced)
}

// InsertOrder stores an order with its items and modifiers atomically.
// An existing order ID is left untouched and reported with inserted=false.
func (s *Store) InsertOrder(ctx context.Context, o commerce.Order) (inserted bool, err error) {
	err = withTx(ctx, s.pool, func(ctx context.Context) error {
		tag, err := s.exec(ctx, `
INSERT INTO orders (id, status, ordered_on, ordered_on_offset, buyer, currency, remote_invoice_ref)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
ON CONFLICT (id) DO NOTHING`,
			o.ID, o.Status, o.OrderedOn, offsetOf(o.OrderedOn), o.Buyer, o.Currency, o.RemoteInvoiceRef)
		if err != nil {
			return fmt.Errorf("insert order %d: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		for pos, item := range o.Items {
			if _, err := s.exec(ctx, `
INSERT INTO order_items (order_id, position, product_title, is_variation, option_summary, quantity, price, tax_type)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`,
				o.ID, pos, item.Product.ProductTitle, item.Product.IsVariation, item.Product.OptionSummary,
				item.Quantity, item.Price.String(), item.TaxType); err != nil {
				return fmt.Errorf("insert order %d item %d: %w", o.ID, pos, err)
			}
		}
		for pos, m := range o.Modifiers {
			if _, err := s.exec(ctx, `
INSERT INTO order_modifiers (order_id, position, description, amount, tax_type)
VALUES ($1, $2, $3, $4::numeric, $5)`,
				o.ID, pos, m.Description, m.Amount.String(), m.TaxType); err != nil {
				return fmt.Errorf("insert order %d modifier %d: %w", o.ID, pos, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// InsertPayment stores a payment. An unknown owning order is commerce.ErrNotFound.
func (s *Store) InsertPayment(ctx context.Context, p commerce.Payment) (inserted bool, err error) {
	tag, err := s.exec(ctx, `
INSERT INTO payments (id, order_id, created, created_offset, amount, remote_payment_ref)
VALUES ($1, $2, $3, $4, $5::numeric, NULLIF($6, ''))
ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OrderID, p.Created, offsetOf(p.Created), p.Amount.String(), p.RemotePaymentRef)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("insert payment %d: order %d: %w", p.ID, p.OrderID, commerce.ErrNotFound)
		}
		return false, fmt.Errorf("insert payment %d: %w", p.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) PendingCounts(ctx context.Context) (commerce.Pending, error) {
	var p commerce.Pending
	err := s.queryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM orders WHERE remote_invoice_ref IS NULL AND status <> $1),
	(SELECT COUNT(*) FROM payments p JOIN orders o ON o.id = p.order_id
		WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NOT NULL),
	(SELECT COUNT(*) FROM payments p JOIN orders o ON o.id = p.order_id
		WHERE p.remote_payment_ref IS NULL AND o.remote_invoice_ref IS NULL)`,
		commerce.StatusCart).Scan(&p.Orders, &p.Payments, &p.BlockedPayments)
	if err != nil {
		return commerce.Pending{}, fmt.Errorf("pending counts: %w", err)
	}
	return p, nil
}

func (s *Store) RecordBatch(ctx context.Context, b commerce.Batch) error {
	_, err := s.exec(ctx, `
INSERT INTO sync_batches (run_id, kind, documents, status_code, reconciled, error, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.RunID, b.Kind, b.Documents, b.StatusCode, b.Reconciled, b.Error, b.StartedAt)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

func (s *Store) RecentBatches(ctx context.Context, limit int) ([]commerce.Batch, error) {
	rows, err := s.query(ctx, `
SELECT id, run_id, kind, documents, status_code, reconciled, error, started_at
FROM sync_batches
ORDER BY id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []commerce.Batch{}
	for rows.Next() {
		var b commerce.Batch
		if err := rows.Scan(&b.ID, &b.RunID, &b.Kind, &b.Documents, &b.StatusCode, &b.Reconciled, &b.Error, &b.StartedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// AcquireRunLock takes a session advisory lock on a dedicated connection.
// The lock dies with the connection, so a crashed run never blocks the next
// one and now is not needed.
func (s *Store) AcquireRunLock(ctx context.Context, runID string, _ time.Time) (func(context.Context) error, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, runLockID).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("acquire run lock for %s: %w", runID, commerce.ErrRunInProgress)
	}

	release := func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, runLockID); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}
	return release, nil
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}
