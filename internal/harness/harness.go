package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/roach88/ledgersync/internal/events"
	"github.com/roach88/ledgersync/internal/importer"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/sandbox"
	"github.com/roach88/ledgersync/internal/store"
	"github.com/roach88/ledgersync/internal/syncer"
	"github.com/roach88/ledgersync/internal/testutil"
)

// Epoch is the fixed wall time every scenario runs at.
var Epoch = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

// Harness wires a store, a sandbox ledger and a syncer for one scenario.
type Harness struct {
	store     *store.Store
	sandbox   *sandbox.Server
	syncer    *syncer.Syncer
	published *collector
	logger    *slog.Logger
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database against its own sandbox.
// The returned error reports broken infrastructure; scenario failures are
// recorded in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb := sandbox.NewServer(sandbox.Options{
		TenantID:    "harness-tenant",
		AccessToken: "harness-token",
		Logger:      logger,
		NewID:       sequence("remote-"),
	})
	srv := httptest.NewServer(sb.Router)
	defer srv.Close()

	httpClient, err := remote.NewHTTPClient(ctx, remote.Credentials{AccessToken: "harness-token"}, 5*time.Second)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(remote.Session{
		BaseURL:   srv.URL + sandbox.BasePath,
		TenantID:  "harness-tenant",
		UserAgent: "ledgersync-harness",
		HTTP:      httpClient,
	})

	invoicePrefix := scenario.InvoicePrefix
	if invoicePrefix == "" {
		invoicePrefix = "WEB-"
	}
	paymentPrefix := scenario.PaymentPrefix
	if paymentPrefix == "" {
		paymentPrefix = invoicePrefix
	}

	published := &collector{}
	h := &Harness{
		store:     st,
		sandbox:   sb,
		published: published,
		logger:    logger,
		syncer: syncer.New(st, client, syncer.Options{
			InvoicePrefix:  invoicePrefix,
			PaymentPrefix:  paymentPrefix,
			SalesAccount:   "200",
			PaymentAccount: "090",
			BaseCurrency:   "NZD",
		},
			syncer.WithLogger(logger),
			syncer.WithClock(testutil.NewFixedClock(Epoch)),
			syncer.WithRunIDGenerator(runIDs(sequence("run-"))),
			syncer.WithBatchLog(st),
			syncer.WithRunLocker(st),
			syncer.WithPublisher(published),
		),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	switch {
	case step.Import != "":
		return h.importFixture(ctx, step.Import, result)
	case step.Fail != nil:
		h.sandbox.FailNext(step.Fail.Status, step.Fail.Body)
		result.addEvent(TraceEvent{Type: EventFail, Status: step.Fail.Status})
		return nil
	case step.Sync != nil:
		return h.sync(ctx, *step.Sync, result)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) importFixture(ctx context.Context, path string, result *Result) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer fh.Close()

	fixture, err := importer.Decode(fh)
	if err != nil {
		return err
	}
	summary, err := importer.Load(ctx, h.store, fixture, h.logger)
	if err != nil {
		return err
	}
	result.addEvent(TraceEvent{
		Type: EventImport,
		Detail: fmt.Sprintf("%d order(s), %d payment(s) inserted",
			summary.OrdersInserted, summary.PaymentsInserted),
	})
	return nil
}

func (h *Harness) sync(ctx context.Context, step SyncStep, result *Result) error {
	kinds, err := parseKinds(step.Only)
	if err != nil {
		return err
	}

	h.published.reset()
	run, runErr := h.syncer.RunKinds(ctx, kinds...)
	result.addEvent(TraceEvent{Type: EventSync, RunID: run.RunID, Failed: runErr != nil})

	switch {
	case runErr != nil && !step.ExpectError:
		result.AddError(fmt.Sprintf("sync %s failed: %v", run.RunID, runErr))
	case runErr == nil && step.ExpectError:
		result.AddError(fmt.Sprintf("sync %s succeeded but a failure was expected", run.RunID))
	}

	synced := h.published.drain()
	for _, kind := range kinds {
		r := run.Invoices
		if kind == ledger.KindPayment {
			r = run.Payments
		}
		result.addEvent(TraceEvent{Type: EventBatch, RunID: run.RunID, Kind: string(kind), Counts: countsOf(r)})
		for _, e := range synced {
			if e.Kind != string(kind) {
				continue
			}
			result.addEvent(TraceEvent{Type: EventSynced, RunID: e.RunID, Kind: e.Kind, LocalID: e.LocalID, RemoteID: e.RemoteID})
		}
	}
	return nil
}

func (h *Harness) collectState(ctx context.Context, result *Result) error {
	pending, err := h.store.PendingCounts(ctx)
	if err != nil {
		return fmt.Errorf("collect pending counts: %w", err)
	}
	result.Pending = pending

	for _, c := range []ledger.Collection{ledger.Invoices, ledger.Payments} {
		result.Created[string(c)] = len(h.sandbox.Created(c))
		result.Submissions[string(c)] = h.sandbox.Submissions(c)
	}

	batches, err := h.store.RecentBatches(ctx, 1000)
	if err != nil {
		return fmt.Errorf("collect batches: %w", err)
	}
	for _, b := range batches {
		if b.Failed() {
			result.FailedBatches++
		}
	}
	return nil
}

// collector keeps published events in memory.
type collector struct {
	mu     sync.Mutex
	events []events.Synced
}

func (c *collector) Publish(_ context.Context, e events.Synced) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) Close() error { return nil }

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *collector) drain() []events.Synced {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// sequence returns a generator of prefix1, prefix2, ...
func sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

type runIDs func() string

func (g runIDs) Generate() string { return g() }
