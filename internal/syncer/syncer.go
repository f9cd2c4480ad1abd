package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/events"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
)

// Submitter sends one serialised batch to the remote ledger.
// Implemented by *remote.Client.
type Submitter interface {
	Submit(ctx context.Context, collection ledger.Collection, body []byte) (*remote.Response, error)
}

// Options are the ledger-facing settings of a sync run.
type Options struct {
	InvoicePrefix  string
	PaymentPrefix  string
	SalesAccount   string // account code for invoice lines
	PaymentAccount string // account payments are received into
	BaseCurrency   string

	// DryRun, when set, receives each serialised batch instead of the
	// remote. Nothing is submitted and nothing is written.
	DryRun io.Writer
}

// Result counts what happened to one kind during a run.
type Result struct {
	Kind       ledger.Kind `json:"kind"`
	Eligible   int         `json:"eligible"`
	Skipped    int         `json:"skipped"`
	Prepared   int         `json:"prepared"`
	Submitted  int         `json:"submitted"`
	Reconciled int         `json:"reconciled"`
	Unmatched  int         `json:"unmatched"`
	StatusCode int         `json:"status_code,omitempty"`
	DryRun     bool        `json:"dry_run,omitempty"`
}

// RunResult is the outcome of Run.
type RunResult struct {
	RunID    string `json:"run_id"`
	Invoices Result `json:"invoices"`
	Payments Result `json:"payments"`
}

// Syncer is the sync orchestrator. It is not safe for concurrent runs;
// serialise them with WithRunLocker.
type Syncer struct {
	repo   commerce.Repository
	client Submitter
	opts   Options

	logger    *slog.Logger
	clock     Clock
	runIDs    RunIDGenerator
	batches   commerce.BatchLog
	publisher events.Publisher
	locker    commerce.RunLocker
}

// Option allows configuration of optional collaborators.
type Option func(*Syncer)

func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.logger = l } }

func WithClock(c Clock) Option { return func(s *Syncer) { s.clock = c } }

func WithRunIDGenerator(g RunIDGenerator) Option { return func(s *Syncer) { s.runIDs = g } }

// WithBatchLog records every submission attempt.
func WithBatchLog(b commerce.BatchLog) Option { return func(s *Syncer) { s.batches = b } }

// WithPublisher announces every reconciled record.
func WithPublisher(p events.Publisher) Option { return func(s *Syncer) { s.publisher = p } }

// WithRunLocker makes Run fail fast with commerce.ErrRunInProgress while
// another run holds the lock.
func WithRunLocker(l commerce.RunLocker) Option { return func(s *Syncer) { s.locker = l } }

func New(repo commerce.Repository, client Submitter, opts Options, options ...Option) *Syncer {
	s := &Syncer{
		repo:      repo,
		client:    client,
		opts:      opts,
		logger:    slog.Default(),
		clock:     systemClock{},
		runIDs:    UUIDv7Generator{},
		publisher: events.Nop{},
	}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run syncs invoices, then payments. Payments are attempted even when the
// invoice batch failed. The returned error joins the per-kind failures.
func (s *Syncer) Run(ctx context.Context) (RunResult, error) {
	return s.RunKinds(ctx, ledger.KindInvoice, ledger.KindPayment)
}

// RunKinds is Run restricted to kinds, which are synced in the order given
// under a single run ID and run lock.
func (s *Syncer) RunKinds(ctx context.Context, kinds ...ledger.Kind) (RunResult, error) {
	runID := s.runIDs.Generate()
	res := RunResult{RunID: runID}
	log := s.logger.With("run_id", runID)

	if s.locker != nil && s.opts.DryRun == nil {
		release, err := s.locker.AcquireRunLock(ctx, runID, s.clock.Now())
		if err != nil {
			return res, fmt.Errorf("sync run: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Error("failed to release run lock", "error", err)
			}
		}()
	}

	log.Info("sync run started", "dry_run", s.opts.DryRun != nil, "kinds", kinds)
	var errs []error
	for _, kind := range kinds {
		r, err := s.syncKind(ctx, runID, kind)
		switch kind {
		case ledger.KindInvoice:
			res.Invoices = r
		case ledger.KindPayment:
			res.Payments = r
		}
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	log.Info("sync run finished",
		"invoices", res.Invoices.Reconciled,
		"payments", res.Payments.Reconciled,
		"failed", err != nil)

	return res, err
}

// SyncInvoices submits every eligible order as one invoice batch.
func (s *Syncer) SyncInvoices(ctx context.Context) (Result, error) {
	return s.syncKind(ctx, s.runIDs.Generate(), ledger.KindInvoice)
}

// SyncPayments submits every eligible payment as one payment batch.
func (s *Syncer) SyncPayments(ctx context.Context) (Result, error) {
	return s.syncKind(ctx, s.runIDs.Generate(), ledger.KindPayment)
}

func (s *Syncer) syncKind(ctx context.Context, runID string, kind ledger.Kind) (Result, error) {
	res := Result{Kind: kind, DryRun: s.opts.DryRun != nil}
	log := s.logger.With("run_id", runID, "kind", kind)

	docs, eligible, skipped, err := s.prepare(ctx, kind, log)
	res.Eligible, res.Skipped, res.Prepared = eligible, skipped, len(docs)
	if err != nil {
		return res, err
	}
	if len(docs) == 0 {
		log.Debug("nothing to submit")
		return res, nil
	}

	collection := kind.Collection()
	body, err := ledger.Marshal(collection, docs)
	if err != nil {
		return res, fmt.Errorf("sync %s: %w", collection, err)
	}

	if s.opts.DryRun != nil {
		if _, err := fmt.Fprintf(s.opts.DryRun, "%s\n", body); err != nil {
			return res, fmt.Errorf("sync %s: write dry run: %w", collection, err)
		}
		log.Info("dry run: batch not submitted", "documents", len(docs))
		return res, nil
	}

	batch := commerce.Batch{RunID: runID, Kind: string(kind), Documents: len(docs), StartedAt: s.clock.Now()}

	log.Info("submitting batch", "documents", len(docs))
	resp, err := s.client.Submit(ctx, collection, body)
	if remoteErr := classify(kind, resp, err); remoteErr != nil {
		if resp != nil {
			res.StatusCode = resp.StatusCode
			batch.StatusCode = resp.StatusCode
		}
		batch.Error = remoteErr.Error()
		s.recordBatch(ctx, log, batch)
		if remoteErr.Code == ErrCodeBadResponse {
			log.Error("remote accepted the batch but the reply was unreadable; check the ledger for duplicates before the next run", "status", res.StatusCode, "error", remoteErr)
		} else {
			log.Error("batch failed, records stay unsynced", "status", res.StatusCode, "error", remoteErr)
		}
		return res, remoteErr
	}
	res.Submitted = len(docs)
	res.StatusCode = resp.StatusCode
	batch.StatusCode = resp.StatusCode

	// Writes must land even if the caller gives up now.
	writeCtx := context.WithoutCancel(ctx)
	rec, recErr := NewReconciler(s.repo, kind, s.prefix(kind), log).Reconcile(writeCtx, resp.Batch, docs)
	res.Reconciled = len(rec.Applied)
	res.Unmatched = rec.Unmatched + rec.Missing

	batch.Reconciled = res.Reconciled
	if recErr != nil {
		batch.Error = recErr.Error()
	}
	s.recordBatch(writeCtx, log, batch)
	s.publish(writeCtx, log, runID, kind, rec.Applied)

	log.Info("batch reconciled",
		"status", res.StatusCode,
		"reconciled", res.Reconciled,
		"unmatched", res.Unmatched)
	if recErr != nil {
		return res, fmt.Errorf("sync %s: reconcile: %w", collection, recErr)
	}
	return res, nil
}

// prepare selects and builds documents for kind. Records the builder refuses
// are logged and counted, never fatal.
func (s *Syncer) prepare(ctx context.Context, kind ledger.Kind, log *slog.Logger) (docs []ledger.Document, eligible, skipped int, err error) {
	var recordErrs []error
	switch kind {
	case ledger.KindInvoice:
		orders, err := s.repo.UnsyncedOrders(ctx)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("sync invoices: select orders: %w", err)
		}
		eligible = len(orders)
		docs, recordErrs = ledger.BuildInvoices(orders, ledger.InvoiceOptions{
			Prefix:      s.opts.InvoicePrefix,
			AccountCode: s.opts.SalesAccount,
			Currency:    s.opts.BaseCurrency,
		})
	case ledger.KindPayment:
		payments, err := s.repo.UnsyncedPayments(ctx)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("sync payments: select payments: %w", err)
		}
		eligible = len(payments)
		docs, recordErrs = ledger.BuildPayments(payments, ledger.PaymentOptions{
			Prefix:      s.opts.PaymentPrefix,
			AccountCode: s.opts.PaymentAccount,
		})
	default:
		return nil, 0, 0, fmt.Errorf("sync: unknown kind %q", kind)
	}

	for _, err := range recordErrs {
		log.Warn("record skipped", "error", err)
	}
	return docs, eligible, len(recordErrs), nil
}

func (s *Syncer) prefix(kind ledger.Kind) string {
	if kind == ledger.KindPayment {
		return s.opts.PaymentPrefix
	}
	return s.opts.InvoicePrefix
}

// classify turns a Submit outcome into a *RemoteError, or nil for a usable 2xx reply.
func classify(kind ledger.Kind, resp *remote.Response, err error) *RemoteError {
	switch {
	case err != nil && resp != nil:
		return &RemoteError{Code: ErrCodeBadResponse, Kind: kind, StatusCode: resp.StatusCode, Body: resp.RawBody, Err: err}
	case err != nil:
		return &RemoteError{Code: ErrCodeTransport, Kind: kind, Err: err}
	case resp == nil:
		return &RemoteError{Code: ErrCodeTransport, Kind: kind, Err: errors.New("no response")}
	case !resp.OK():
		return &RemoteError{Code: ErrCodeRejected, Kind: kind, StatusCode: resp.StatusCode, Body: resp.RawBody}
	}
	return nil
}

func (s *Syncer) recordBatch(ctx context.Context, log *slog.Logger, b commerce.Batch) {
	if s.batches == nil {
		return
	}
	if err := s.batches.RecordBatch(ctx, b); err != nil {
		log.Error("failed to record batch", "error", err)
	}
}

func (s *Syncer) publish(ctx context.Context, log *slog.Logger, runID string, kind ledger.Kind, applied []Match) {
	at := s.clock.Now()
	for _, m := range applied {
		err := s.publisher.Publish(ctx, events.Synced{
			RunID:    runID,
			Kind:     string(kind),
			LocalID:  m.LocalID,
			RemoteID: m.RemoteID,
			At:       at,
		})
		if err != nil {
			log.Warn("failed to publish sync event", "local_id", m.LocalID, "error", err)
		}
	}
}
