package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/ledger"
)

// Match links a local record to the remote document created for it.
type Match struct {
	LocalID  int64
	RemoteID string
}

// Reconciliation summarises one Reconcile call.
type Reconciliation struct {
	Applied []Match
	// Unmatched counts response items that were skipped: bad or foreign
	// tokens, unknown records, records already synced.
	Unmatched int
	// Missing counts submitted documents the response did not mention.
	Missing int
	// Failed counts items whose write returned an unexpected error.
	Failed int
}

// Reconciler writes remote IDs from a batch response back onto local records.
type Reconciler struct {
	repo   commerce.Repository
	kind   ledger.Kind
	prefix string
	logger *slog.Logger
}

func NewReconciler(repo commerce.Repository, kind ledger.Kind, prefix string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, kind: kind, prefix: prefix, logger: logger.With("kind", kind)}
}

// Reconcile processes every item of batch, in order, without stopping early.
//
// Only local IDs of the submitted documents are accepted; anything else in
// the response is logged and counted as unmatched. commerce.ErrNotFound and
// commerce.ErrAlreadySynced from the repository are warnings. Other write
// errors are joined into the returned error after all items were tried.
func (r *Reconciler) Reconcile(ctx context.Context, batch ledger.BatchResponse, submitted []ledger.Document) (Reconciliation, error) {
	pending := make(map[int64]bool, len(submitted))
	for _, doc := range submitted {
		pending[doc.Correlation().ID] = true
	}

	var rec Reconciliation
	var errs []error
	for _, item := range batch.Items {
		log := r.logger.With("token", item.Token, "remote_id", item.RemoteID)

		id, err := ledger.ParseCorrelation(r.prefix, item.Token)
		if err != nil {
			log.Warn("response item has no usable correlation token", "error", err)
			rec.Unmatched++
			continue
		}
		log = log.With(r.idKey(), id)

		if !pending[id] {
			log.Warn("response item does not match a submitted record")
			rec.Unmatched++
			continue
		}
		// A second item for the same record must not be applied.
		delete(pending, id)
		if item.RemoteID == "" {
			log.Warn("response item has no remote ID")
			rec.Unmatched++
			continue
		}

		err = r.apply(ctx, id, item.RemoteID)
		switch {
		case err == nil:
			log.Debug("record synced")
			rec.Applied = append(rec.Applied, Match{LocalID: id, RemoteID: item.RemoteID})
		case errors.Is(err, commerce.ErrNotFound), errors.Is(err, commerce.ErrAlreadySynced):
			log.Warn("remote document not recorded locally", "error", err)
			rec.Unmatched++
		default:
			log.Error("failed to record remote ID", "error", err)
			rec.Failed++
			errs = append(errs, fmt.Errorf("%s %d: %w", r.kind, id, err))
		}
	}

	for _, doc := range submitted {
		id := doc.Correlation().ID
		if pending[id] {
			r.logger.Warn("submitted record missing from response", r.idKey(), id)
			rec.Missing++
		}
	}

	return rec, errors.Join(errs...)
}

func (r *Reconciler) apply(ctx context.Context, id int64, remoteID string) error {
	switch r.kind {
	case ledger.KindInvoice:
		return r.repo.SetOrderInvoiceRef(ctx, id, remoteID)
	case ledger.KindPayment:
		return r.repo.SetPaymentRef(ctx, id, remoteID)
	default:
		return fmt.Errorf("reconcile: unknown kind %q", r.kind)
	}
}

func (r *Reconciler) idKey() string {
	if r.kind == ledger.KindPayment {
		return "payment_id"
	}
	return "order_id"
}
