// Package sandbox is an in-memory stand-in for the remote ledger. It speaks
// the same XML protocol as the real API so the sync pipeline can run end to
// end locally and in tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
)

// BasePath is the API prefix the sandbox serves, matching the real ledger.
const BasePath = "/api.xro/2.0"

// Options configures a Server. Zero values accept any tenant and any token.
type Options struct {
	TenantID    string
	AccessToken string
	Logger      *slog.Logger
	NewID       func() string
}

// Record is a document the sandbox accepted.
type Record struct {
	RemoteID string
	Document ledger.Document
}

type forced struct {
	status int
	body   string
}

type Server struct {
	Router *mux.Router

	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	created     map[ledger.Collection][]Record
	invoiceIDs  map[string]bool
	submissions map[ledger.Collection]int
	failures    []forced
}

func NewServer(opts Options) *Server {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Router:      mux.NewRouter(),
		opts:        opts,
		logger:      logger,
		created:     make(map[ledger.Collection][]Record),
		invoiceIDs:  make(map[string]bool),
		submissions: make(map[ledger.Collection]int),
	}
	api := s.Router.PathPrefix(BasePath).Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/{collection}", s.handleSubmit).Methods(http.MethodPost)
	return s
}

// FailNext makes the next submission answer with status and body instead of
// creating anything. Calls queue up.
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, forced{status: status, body: body})
}

// Created returns the documents accepted into collection, oldest first.
func (s *Server) Created(collection ledger.Collection) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.created[collection]...)
}

// Submissions counts POSTs to collection, including failed ones.
func (s *Server) Submissions(collection ledger.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[collection]
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AccessToken != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.AccessToken {
			writeError(w, http.StatusUnauthorized, "AuthenticationUnsuccessful")
			return
		}
		if s.opts.TenantID != "" && r.Header.Get(remote.TenantHeader) != s.opts.TenantID {
			writeError(w, http.StatusForbidden, "AuthorizationUnsuccessful")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	collection := ledger.Collection(mux.Vars(r)["collection"])
	if collection.Kind() == "" {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", collection))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[collection]++

	if len(s.failures) > 0 {
		f := s.failures[0]
		s.failures = s.failures[1:]
		s.logger.Info("sandbox forced failure", "collection", collection, "status", f.status)
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return
	}

	docs, err := ledger.Unmarshal(collection, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.check(docs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var batch ledger.BatchResponse
	for _, doc := range docs {
		id := s.opts.NewID()
		s.created[collection] = append(s.created[collection], Record{RemoteID: id, Document: doc})
		var token string
		switch d := doc.(type) {
		case *ledger.Invoice:
			s.invoiceIDs[id] = true
			token = d.InvoiceNumber
		case *ledger.Payment:
			token = d.Reference
		}
		batch.Items = append(batch.Items, ledger.BatchItem{RemoteID: id, Token: token})
	}

	out, err := ledger.EncodeBatchResponse(collection, batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("sandbox accepted batch", "collection", collection, "documents", len(docs))
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(out)
}

// check validates the whole batch before anything is created, so a rejected
// batch leaves no trace.
func (s *Server) check(docs []ledger.Document) error {
	var errs []error
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		if p, ok := doc.(*ledger.Payment); ok && !s.invoiceIDs[p.Invoice.InvoiceID] {
			errs = append(errs, fmt.Errorf("document %d: invoice %q does not exist", i, p.Invoice.InvoiceID))
		}
	}
	return errors.Join(errs...)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("sandbox: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sandbox shutdown: %w", err)
		}
		return nil
	}
}
