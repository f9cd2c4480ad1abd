// Package ledger turns local commerce records into remote ledger documents
// and back.
//
// The package is pure: no network or store access happens here.
//
// # Documents
//
// A Document is either an *Invoice or a *Payment. The set is closed; both
// types carry a fixed field set whose layout is the wire layout. Builders
// validate every document before returning it, so a document handed to
// Marshal is always well-formed.
//
// # Correlation
//
// Every document carries a correlation token (InvoiceNumber for invoices,
// Reference for payments) that the remote echoes back unchanged. Tokens are
// <prefix><decimal local ID>. Prefixes are rejected by ValidatePrefix when
// they could make a token ambiguous, which guarantees
//
//	ParseCorrelation(p, NewCorrelation(p, id).Token()) == id
//
// for every valid prefix p and positive id.
//
// # Wire format
//
// Marshal writes one XML document per batch:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<Invoices><Invoice>...</Invoice><Invoice>...</Invoice></Invoices>
//
// ParseBatchResponse reads the remote reply and pairs every remote ID with
// the token it was created under.
package ledger
