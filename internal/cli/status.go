package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/commerce"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Limit int
}

// BatchView is one batch log entry as shown by status.
type BatchView struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Documents  int       `json:"documents"`
	StatusCode int       `json:"status_code"`
	Reconciled int       `json:"reconciled"`
	Failed     bool      `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// StatusResult holds the complete status output.
type StatusResult struct {
	Pending commerce.Pending `json:"pending"`
	Batches []BatchView      `json:"batches"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending records and recent batches",
		Long: `Show how many orders and payments are waiting to be synced, and the
most recent submission attempts from the batch log.

Payments are "blocked" while their order has no ledger invoice yet; they
become eligible once the invoice batch for that order succeeds.

Examples:
  ledgersync status
  ledgersync status --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of recent batches to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "failed to load configuration", err, problemsOf(err))
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return formatter.Fail(ErrCodeStore, "failed to open store", err, nil)
	}
	defer closeBackend(backend)

	pending, err := backend.PendingCounts(ctx)
	if err != nil {
		return formatter.Fail(ErrCodeStore, "failed to count pending records", err, nil)
	}
	batches, err := backend.RecentBatches(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ErrCodeStore, "failed to read batch log", err, nil)
	}

	result := StatusResult{Pending: pending, Batches: make([]BatchView, 0, len(batches))}
	for _, b := range batches {
		result.Batches = append(result.Batches, BatchView{
			RunID:      b.RunID,
			Kind:       b.Kind,
			Documents:  b.Documents,
			StatusCode: b.StatusCode,
			Reconciled: b.Reconciled,
			Failed:     b.Failed(),
			Error:      b.Error,
			StartedAt:  b.StartedAt,
		})
	}

	if opts.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{Status: "ok", Data: result})
	}
	outputStatusText(formatter.Writer, result, opts.Verbose)
	return nil
}

func outputStatusText(w io.Writer, result StatusResult, verbose bool) {
	fmt.Fprintln(w, "=== Pending ===")
	fmt.Fprintf(w, "  Orders:   %d\n", result.Pending.Orders)
	fmt.Fprintf(w, "  Payments: %d", result.Pending.Payments)
	if result.Pending.BlockedPayments > 0 {
		fmt.Fprintf(w, " (+%d waiting for their invoice)", result.Pending.BlockedPayments)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Recent batches ===")
	if len(result.Batches) == 0 {
		fmt.Fprintln(w, "  (no batches submitted yet)")
		return
	}
	for _, b := range result.Batches {
		state := "ok"
		if b.Failed {
			state = "FAILED"
		}
		fmt.Fprintf(w, "  %s  %-7s %3d doc(s)  %3d reconciled  status %d  %s  run %s\n",
			b.StartedAt.Format(time.RFC3339), b.Kind, b.Documents, b.Reconciled,
			b.StatusCode, state, truncateID(b.RunID))
		if b.Error != "" && (b.Failed || verbose) {
			fmt.Fprintf(w, "      %s\n", b.Error)
		}
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
