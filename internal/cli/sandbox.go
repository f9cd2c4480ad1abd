package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/sandbox"
)

// SandboxOptions holds flags for the sandbox command.
type SandboxOptions struct {
	*RootOptions
	Addr string
}

// NewSandboxCommand creates the sandbox command.
func NewSandboxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SandboxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local fake ledger",
		Long: `Run an in-memory ledger that speaks the same XML protocol as the real
one. Point ledger.base_url at it to exercise the full sync locally:

  ledgersync sandbox --addr 127.0.0.1:8089
  LEDGERSYNC_BASE_URL=http://127.0.0.1:8089/api.xro/2.0 \
    LEDGERSYNC_TENANT_ID=sandbox-tenant LEDGERSYNC_ACCESS_TOKEN=sandbox-token \
    ledgersync sync

Everything the sandbox accepts is lost when it stops.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandbox(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default sandbox.addr from the config)")

	return cmd
}

func runSandbox(opts *SandboxOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "failed to load configuration", err, problemsOf(err))
	}
	addr := opts.Addr
	if addr == "" {
		addr = cfg.Sandbox.Addr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := sandbox.NewServer(sandbox.Options{
		TenantID:    cfg.Sandbox.TenantID,
		AccessToken: cfg.Sandbox.AccessToken,
		Logger:      slog.Default(),
	})

	slog.Info("sandbox ledger starting", "addr", addr, "base_path", sandbox.BasePath)
	fmt.Fprintf(cmd.OutOrStdout(), "Sandbox ledger listening on http://%s%s\n", addr, sandbox.BasePath)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := srv.Serve(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "sandbox error", err)
	}

	slog.Info("sandbox ledger stopped gracefully")
	return nil
}
