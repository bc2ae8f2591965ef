package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/auth"
	"github.com/dukex/autoflow/pkg/breaker"
	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/dryrun"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/rules"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Engine holds the components built from one configuration.
type Engine struct {
	Processor  *worker.Processor
	Tracer     *dryrun.Tracer
	Authorizer *auth.Authorizer

	closers []func() error
}

// NewEngine wires the execution components over store. bus and tracer may be nil.
func NewEngine(logger *slog.Logger, cfg *config.Config, store persistence.Persistence, bus *eventbus.WatermillEventBus, tracer trace.Tracer) (*Engine, error) {
	engine := &Engine{}

	collaborators := actions.Collaborators{
		SMS:           actions.UnconfiguredSMSSender{},
		Notifications: store,
		Jobs:          store,
		HTTP:          &http.Client{Timeout: cfg.Actions.Timeout},
	}

	if cfg.Actions.EmailAPIURL != "" {
		collaborators.Email = actions.NewHTTPEmailSender(collaborators.HTTP, cfg.Actions.EmailAPIURL, cfg.Actions.EmailAPIKey, cfg.Actions.EmailFrom)
	}

	dispatcher := actions.NewDispatcher(logger, collaborators, cfg.Actions.Timeout)
	interpreter := workflow.NewInterpreter(logger, rules.NewEvaluator(logger), dispatcher)

	counter, err := engine.newCounter(cfg, store)
	if err != nil {
		return nil, err
	}

	deps := worker.Dependencies{
		Store:       store,
		Interpreter: interpreter,
		Programs:    workflow.NewCache(logger),
		Breaker: breaker.New(logger, counter, breaker.Config{
			Limit:    cfg.Breaker.Limit,
			Window:   cfg.Breaker.Window,
			Cooldown: cfg.Breaker.Cooldown,
		}),
		Tracer: tracer,
	}

	if bus != nil {
		deps.Publisher = bus
	}

	engine.Processor = worker.NewProcessor(logger, deps, worker.Config{
		WorkerID:     workerID(cfg),
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.Worker.RetryBackoff,
		MaxBackoff:   cfg.Worker.MaxBackoff,
		Lease:        cfg.Worker.Lease,
	})
	engine.Tracer = dryrun.NewTracer(logger, store, interpreter)
	engine.Authorizer = auth.NewAuthorizer(logger, cfg.Auth.ServiceKey, cfg.Auth.JWTSecret, store)

	return engine, nil
}

// newCounter picks the breaker's shared window: Redis when configured, otherwise the
// ledger itself.
func (e *Engine) newCounter(cfg *config.Config, store persistence.Persistence) (breaker.Counter, error) {
	if cfg.Breaker.RedisURL == "" {
		return breaker.NewSQLCounter(store), nil
	}

	options, err := redis.ParseURL(cfg.Breaker.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid breaker redis url: %w", err)
	}

	client := redis.NewClient(options)
	e.closers = append(e.closers, client.Close)

	return breaker.NewRedisCounter(client, ""), nil
}

// Close releases connections opened by NewEngine.
func (e *Engine) Close(ctx context.Context) {
	for _, closer := range e.closers {
		if err := closer(); err != nil {
			slog.ErrorContext(ctx, "Failed to close engine resource", "error", err)
		}
	}
}

func workerID(cfg *config.Config) string {
	if cfg.Worker.ID != "" {
		return cfg.Worker.ID
	}

	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	return host + "-" + uuid.NewString()[:8]
}
