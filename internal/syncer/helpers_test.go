package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/events"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/sandbox"
	"github.com/roach88/ledgersync/internal/store"
	"github.com/roach88/ledgersync/internal/testutil"
)

var testOptions = Options{
	InvoicePrefix:  "WEB-",
	PaymentPrefix:  "PAY-",
	SalesAccount:   "200",
	PaymentAccount: "090",
	BaseCurrency:   "NZD",
}

type recorder struct {
	mu     sync.Mutex
	events []events.Synced
}

func (r *recorder) Publish(_ context.Context, e events.Synced) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

// fakeSubmitter answers with respond and counts calls.
type fakeSubmitter struct {
	calls   int
	bodies  [][]byte
	respond func(ctx context.Context, c ledger.Collection, body []byte) (*remote.Response, error)
}

func (f *fakeSubmitter) Submit(ctx context.Context, c ledger.Collection, body []byte) (*remote.Response, error) {
	f.calls++
	f.bodies = append(f.bodies, body)
	return f.respond(ctx, c, body)
}

type harness struct {
	store   *store.Store
	sandbox *sandbox.Server
	events  *recorder
	clock   *testutil.FixedClock
	syncer  *Syncer
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newHarness wires a Syncer to a SQLite store and a sandbox ledger that
// assigns remote-1, remote-2, ... in order.
func newHarness(t *testing.T, opts Options, extra ...Option) *harness {
	t.Helper()
	n := 0
	sb := sandbox.NewServer(sandbox.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID: func() string {
			n++
			return fmt.Sprintf("remote-%d", n)
		},
	})
	srv := httptest.NewServer(sb.Router)
	t.Cleanup(srv.Close)

	httpClient, err := remote.NewHTTPClient(context.Background(), remote.Credentials{AccessToken: "tok"}, 5*time.Second)
	require.NoError(t, err)
	client := remote.NewClient(remote.Session{BaseURL: srv.URL + sandbox.BasePath, TenantID: "tenant", HTTP: httpClient})

	h := &harness{
		store:   newTestStore(t),
		sandbox: sb,
		events:  &recorder{},
		clock:   testutil.NewFixedClock(testutil.OrderedOn.Add(24 * time.Hour)),
	}
	options := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(h.clock),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
		WithBatchLog(h.store),
		WithPublisher(h.events),
	}
	h.syncer = New(h.store, client, opts, append(options, extra...)...)
	return h
}

func (h *harness) seedOrders(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := h.store.InsertOrder(context.Background(), testutil.NewOrder(id))
		require.NoError(t, err)
	}
}

func (h *harness) seedPayment(t *testing.T, id, orderID int64) {
	t.Helper()
	_, err := h.store.InsertPayment(context.Background(), testutil.NewPayment(id, orderID, ""))
	require.NoError(t, err)
}

func (h *harness) invoiceRef(t *testing.T, orderID int64) string {
	t.Helper()
	o, err := h.store.Order(context.Background(), orderID)
	require.NoError(t, err)
	return o.RemoteInvoiceRef
}

func (h *harness) paymentRef(t *testing.T, paymentID int64) string {
	t.Helper()
	p, err := h.store.Payment(context.Background(), paymentID)
	require.NoError(t, err)
	return p.RemotePaymentRef
}
