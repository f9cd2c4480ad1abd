package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/importer"
)

// ImportResult is the output of the import command.
type ImportResult struct {
	File string `json:"file"`
	importer.Summary
}

func (r ImportResult) String() string {
	return fmt.Sprintf("imported %d order(s) and %d payment(s) from %s (%d order(s), %d payment(s) already present)",
		r.OrdersInserted, r.PaymentsInserted, r.File, r.OrdersSkipped, r.PaymentsSkipped)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Load orders and payments from a YAML fixture into the store",
		Long: `Load orders and payments from a YAML fixture into the local store.

Records whose ID already exists are left untouched, so importing the same
file twice is harmless. Intended for local development and demos against
the sandbox ledger.

Example:
  ledgersync import ./testdata/shop.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	fh, err := os.Open(path)
	if err != nil {
		return formatter.Fail(ErrCodeImport, "failed to open fixture", err, nil)
	}
	defer fh.Close()

	fixture, err := importer.Decode(fh)
	if err != nil {
		return formatter.Fail(ErrCodeImport, "failed to read fixture", err, nil)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "failed to load configuration", err, problemsOf(err))
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return formatter.Fail(ErrCodeStore, "failed to open store", err, nil)
	}
	defer closeBackend(backend)

	summary, err := importer.Load(ctx, backend, fixture, slog.Default())
	if err != nil {
		return formatter.Fail(ErrCodeImport, "import failed", err, nil)
	}
	return formatter.Success(ImportResult{File: path, Summary: summary})
}
