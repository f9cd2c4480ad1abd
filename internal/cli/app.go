package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/importer"
	"github.com/roach88/ledgersync/internal/store"
	"github.com/roach88/ledgersync/internal/store/postgres"
)

// Backend is everything the commands need from a local store. Both the
// SQLite and the Postgres store implement it.
type Backend interface {
	commerce.Repository
	commerce.BatchLog
	commerce.RunLocker
	importer.Inserter
	PendingCounts(ctx context.Context) (commerce.Pending, error)
	Close() error
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// openBackend opens the store selected by cfg.Store.Driver.
func openBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		slog.Debug("opening postgres store")
		st, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite, "":
		slog.Debug("opening sqlite store", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func closeBackend(b Backend) {
	if err := b.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM or when parent is done.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// loadConfig loads the configuration named by --config, if any.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", "path", opts.ConfigPath, "store", cfg.Store.Driver)
	return cfg, nil
}
