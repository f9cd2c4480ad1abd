// Package syncer drives one-directional synchronisation of local orders and
// payments into the remote ledger.
//
// A run handles invoices first and payments second; a payment document
// references its order's remote invoice, so payments of orders invoiced in
// this run are picked up in the same run.
//
// For each kind the Syncer:
//  1. reads eligible records from the commerce.Repository
//  2. builds ledger documents (ineligible or malformed records are skipped and logged)
//  3. returns early when there is nothing to submit
//  4. serialises the batch and submits it with a single request
//  5. on a 2xx reply hands the batch response to a Reconciler, which writes
//     each remote ID back onto its local record
//
// A failed submission (transport error or non-2xx) writes nothing: every
// record stays eligible for the next run. Failures are not retried within a
// run; they are recorded in the batch log when one is configured.
//
// The repository is never used across the network call. Reconciliation
// writes are not cancelled with the caller's context: once the remote has
// accepted a batch, the references must be stored or the next run would
// submit duplicates.
package syncer
