// Package remote submits ledger batches to the remote accounting API.
//
// A Session carries everything a request needs (base URL, tenant, an
// authenticated *http.Client). There is no package-level state: callers
// build a Session once per run and pass it to NewClient.
//
// Submit never interprets a non-2xx status as an error. The status, the raw
// body and, for 2xx replies, the parsed batch are returned in a Response so
// the caller decides what a failure means. Only transport failures and
// unreadable 2xx bodies are returned as errors.
package remote
