// Package store provides the SQLite-backed local shop store used by ledgersync.
//
// It holds orders (with their line items and modifiers) and payments, the
// remote references written back after a successful sync, a log of every
// batch submission, and the lock that keeps two sync runs from overlapping.
//
// # Sync Invariants
//
// Remote references are write-once:
//   - SetOrderInvoiceRef and SetPaymentRef only update rows whose reference is NULL
//   - a second write returns commerce.ErrAlreadySynced and changes nothing
//
// Reads never hold a transaction open. The sync core reads, releases the
// connection, talks to the remote ledger, and only then writes.
//
// # Storage Formats
//
//   - Money is stored as decimal TEXT and read back with shopspring/decimal
//   - Timestamps are RFC 3339 TEXT with their original offset
//   - Line items and modifiers keep their position within the order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
