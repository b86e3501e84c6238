package cli

import (
	"context"
	"log/slog"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/config"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/messaging"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/store"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/writer"
)

// app bundles what the commands run against.
type app struct {
	cfg     config.Config
	store   *store.Store
	broker  *messaging.Broker
	service *writer.Service
}

// openApp loads the configuration and opens the store.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.Lookup)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	connOpts, err := cfg.ConnOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	slog.Debug("opening datastore", "driver", cfg.Driver, "max_connections", cfg.MaxConnections)
	st, err := store.Open(ctx, connOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	broker := messaging.NewBroker()
	svc := writer.NewService(st, st, broker, st,
		writer.WithRetryPolicy(cfg.RetryPolicy()),
		writer.WithLogger(slog.Default()),
	)
	return &app{cfg: cfg, store: st, broker: broker, service: svc}, nil
}

func (a *app) Close() {
	a.broker.Close()
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
