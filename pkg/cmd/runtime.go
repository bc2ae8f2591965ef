package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/urfave/cli/v3"
)

// Runtime is everything a command needs, built from flags and configuration.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
	Store  persistence.Persistence
	Bus    *eventbus.WatermillEventBus
	Engine *Engine

	logFile  io.Closer
	shutdown otelhelper.ShutdownFunc
}

// NewRuntime loads configuration and opens the store, the bus and the engine.
func NewRuntime(ctx context.Context, command *cli.Command, service string) (*Runtime, error) {
	cfg, err := LoadConfig(command)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, logFile: SetupLogging(cfg)}
	rt.Logger = log.WithModule(service)

	tracer, shutdown, err := NewTracer(ctx, cfg, service)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.shutdown = shutdown

	rt.Store, err = NewPersistence(ctx, rt.Logger, cfg.DatabaseURL)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Bus, err = NewEventBus(rt.Logger, cfg)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Engine, err = NewEngine(rt.Logger, cfg, rt.Store, rt.Bus, tracer)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

// RequireBus fails when no event bus is configured.
func (rt *Runtime) RequireBus() error {
	if rt.Bus == nil {
		return errors.New("an event bus is required; set --event-bus or event_bus.provider")
	}

	return nil
}

// Close releases everything NewRuntime opened, in reverse order.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Engine != nil {
		rt.Engine.Close(ctx)
	}

	if rt.Bus != nil {
		if err := rt.Bus.Close(); err != nil {
			rt.Logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if rt.Store != nil {
		if err := rt.Store.Close(ctx); err != nil {
			rt.Logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}

	if rt.logFile != nil {
		_ = rt.logFile.Close()
	}
}
