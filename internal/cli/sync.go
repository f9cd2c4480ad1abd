package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/credentials"
	"github.com/roach88/ledgersync/internal/events"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Only   string // "", "invoices" or "payments"
	DryRun bool

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs syncer.RunIDGenerator

	// Secrets allows overriding the AWS Secrets Manager client (for testing).
	Secrets credentials.SecretsAPI
}

// SyncSummary is the outcome of a sync run as printed by the command.
type SyncSummary struct {
	syncer.RunResult
	DryRunOutput string `json:"dry_run_output,omitempty"`
}

func (s *SyncSummary) GetRunID() string { return s.RunID }

func (s *SyncSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", s.RunID)
	for _, r := range []syncer.Result{s.Invoices, s.Payments} {
		if r.Kind == "" {
			continue
		}
		verb := "created"
		n := r.Reconciled
		if r.DryRun {
			verb, n = "prepared (dry run)", r.Prepared
		}
		fmt.Fprintf(&b, "  %d %s(s) %s", n, r.Kind, verb)
		if r.Skipped > 0 {
			fmt.Fprintf(&b, ", %d skipped", r.Skipped)
		}
		if r.Unmatched > 0 {
			fmt.Fprintf(&b, ", %d unmatched", r.Unmatched)
		}
		if r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode >= 300) {
			fmt.Fprintf(&b, ", remote answered %d", r.StatusCode)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Submit unsynced orders and payments to the ledger",
		Long: `Submit every unsynced order as one invoice batch, then every payment
whose order already has a ledger invoice as one payment batch.

The identifiers the ledger assigns are written back to the local store, so a
record is never submitted twice. A failed batch leaves its records unsynced
and the next run picks them up again.

Examples:
  ledgersync sync --config ./ledgersync.yaml
  ledgersync sync --only invoices
  ledgersync sync --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Only, "only", "", "sync only one kind (invoices|payments)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the batches instead of submitting them")

	return cmd
}

func parseOnly(only string) ([]ledger.Kind, error) {
	switch only {
	case "":
		return []ledger.Kind{ledger.KindInvoice, ledger.KindPayment}, nil
	case "invoices", string(ledger.KindInvoice):
		return []ledger.Kind{ledger.KindInvoice}, nil
	case "payments", string(ledger.KindPayment):
		return []ledger.Kind{ledger.KindPayment}, nil
	}
	return nil, fmt.Errorf("invalid --only %q: must be invoices or payments", only)
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kinds, err := parseOnly(strings.ToLower(opts.Only))
	if err != nil {
		_ = formatter.Error(ErrCodeUsage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "failed to load configuration", err, problemsOf(err))
	}

	// Credentials are resolved before the store is touched so a bad
	// configuration never gets as far as a submission.
	var client syncer.Submitter
	if !opts.DryRun {
		client, err = newRemoteClient(ctx, opts, cfg)
		if err != nil {
			return formatter.Fail(errorCode(err), "failed to prepare ledger session", err, problemsOf(err))
		}
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return formatter.Fail(ErrCodeStore, "failed to open store", err, nil)
	}
	defer closeBackend(backend)

	publisher := connectPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("error closing event publisher", "error", err)
		}
	}()

	syncOpts := syncer.Options{
		InvoicePrefix:  cfg.Ledger.InvoicePrefix,
		PaymentPrefix:  cfg.Ledger.PaymentPrefix,
		SalesAccount:   cfg.Ledger.SalesAccount,
		PaymentAccount: cfg.Ledger.PaymentAccount,
		BaseCurrency:   cfg.Ledger.BaseCurrency,
	}
	var dryRunBuf bytes.Buffer
	if opts.DryRun {
		var w io.Writer = cmd.OutOrStdout()
		if opts.Format == "json" {
			w = &dryRunBuf
		}
		syncOpts.DryRun = w
	}

	options := []syncer.Option{
		syncer.WithLogger(slog.Default()),
		syncer.WithBatchLog(backend),
		syncer.WithRunLocker(backend),
		syncer.WithPublisher(publisher),
	}
	if opts.RunIDs != nil {
		options = append(options, syncer.WithRunIDGenerator(opts.RunIDs))
	}

	s := syncer.New(backend, client, syncOpts, options...)
	res, runErr := s.RunKinds(ctx, kinds...)
	summary := &SyncSummary{RunResult: res, DryRunOutput: dryRunBuf.String()}

	if errors.Is(runErr, commerce.ErrRunInProgress) {
		return formatter.Fail(ErrCodeRunInProgress, "sync not started", runErr, nil)
	}
	if runErr != nil {
		return formatter.Fail(ErrCodeSyncFailed, "sync finished with errors", runErr, summary)
	}
	return formatter.Success(summary)
}

// newRemoteClient resolves credentials and builds the ledger client.
func newRemoteClient(ctx context.Context, opts *SyncOptions, cfg *config.Config) (*remote.Client, error) {
	secrets := opts.Secrets
	if secrets == nil && cfg.Credentials.Source == config.SourceAWS {
		api, err := credentials.NewSecretsAPI(ctx, cfg.Credentials.AWSRegion)
		if err != nil {
			return nil, &config.Error{Problems: []string{err.Error()}, Err: err}
		}
		secrets = api
	}

	resolved, err := credentials.Resolve(ctx, cfg, secrets, slog.Default())
	if err != nil {
		return nil, err
	}

	httpClient, err := remote.NewHTTPClient(ctx, resolved.Credentials, cfg.Ledger.Timeout.Std())
	if err != nil {
		return nil, &config.Error{Problems: []string{err.Error()}, Err: err}
	}
	session := remote.Session{
		BaseURL:   cfg.Ledger.BaseURL,
		TenantID:  resolved.TenantID,
		UserAgent: cfg.Ledger.UserAgent,
		HTTP:      httpClient,
	}
	if err := session.Validate(); err != nil {
		return nil, &config.Error{Problems: []string{err.Error()}, Err: err}
	}
	return remote.NewClient(session), nil
}

// connectPublisher returns the NATS Streaming publisher when events are
// enabled. Publishing is best effort: a failed connection only disables it.
func connectPublisher(cfg *config.Config) events.Publisher {
	if !cfg.Events.Enabled {
		return events.Nop{}
	}
	p, err := events.ConnectStan(events.StanConfig{
		ClusterID: cfg.Events.ClusterID,
		ClientID:  cfg.Events.ClientID,
		URL:       cfg.Events.URL,
		Subject:   cfg.Events.Subject,
	})
	if err != nil {
		slog.Warn("sync events disabled", "error", err)
		return events.Nop{}
	}
	return p
}

// problemsOf returns the problem list of a configuration error, for the
// details of a JSON error response.
func problemsOf(err error) any {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) && len(cfgErr.Problems) > 1 {
		return cfgErr.Problems
	}
	return nil
}
