package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Invoke a batch on the configured schedule until interrupted",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression or descriptor, e.g. \"@every 30s\"",
				Sources: cli.EnvVars("WORKER_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "ingest",
				Usage:   "Also consume trigger events from the event bus",
				Sources: cli.EnvVars("WORKER_INGEST"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, command, "autoflow-worker")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			schedule := rt.Config.Worker.Schedule
			if command.IsSet("schedule") {
				schedule = command.String("schedule")
			}

			if command.Bool("ingest") {
				if err := startIngest(ctx, rt); err != nil {
					return err
				}
			}

			scheduler, err := worker.NewScheduler(rt.Logger, rt.Engine.Processor, schedule)
			if err != nil {
				return err
			}

			rt.Logger.InfoContext(ctx, "Initializing autoflow worker", "schedule", schedule)

			if err := scheduler.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			rt.Logger.Info("Shutting down autoflow worker")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.Config.Worker.Lease)
			defer cancel()

			scheduler.Stop(shutdownCtx)

			return nil
		},
	}
}

func NewBatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run one batch and print its statistics as JSON",
		Flags: cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "autoflow-worker")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			stats := rt.Engine.Processor.RunBatch(ctx)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(stats)
		},
	}
}

func NewIngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Consume trigger events from the event bus into the queue",
		Flags: cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, command, "autoflow-ingest")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if err := startIngest(ctx, rt); err != nil {
				return err
			}

			<-ctx.Done()

			rt.Logger.Info("Shutting down trigger ingest")

			return nil
		},
	}
}

func startIngest(ctx context.Context, rt *cmd.Runtime) error {
	if err := rt.RequireBus(); err != nil {
		return err
	}

	if err := eventbus.NewIngestor(rt.Logger, rt.Store).Register(rt.Bus); err != nil {
		return fmt.Errorf("failed to register ingestor: %w", err)
	}

	if err := rt.Bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to trigger events: %w", err)
	}

	rt.Logger.InfoContext(ctx, "Consuming trigger events", "topic", events.TriggerTopic)

	return nil
}

func NewMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Bring the database schema up to date and exit",
		Flags: cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := cmd.LoadConfig(command)
			if err != nil {
				return err
			}

			closer := cmd.SetupLogging(cfg)
			defer func() {
				_ = closer.Close()
			}()

			store, err := cmd.NewPersistence(ctx, cmd.Logger("autoflow-migrate"), cfg.DatabaseURL)
			if err != nil {
				return err
			}

			return store.Close(ctx)
		},
	}
}

func NewImportFlowCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-flow",
		Usage:     "Validate a flow definition from a JSON file and save it",
		ArgsUsage: "<flow.json>",
		Flags:     cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a flow file is required")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read flow file: %w", err)
			}

			var flow models.Flow
			if err := json.Unmarshal(raw, &flow); err != nil {
				return fmt.Errorf("failed to parse flow file: %w", err)
			}

			rt, err := cmd.NewRuntime(ctx, command, "autoflow-worker")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if _, err := workflow.Compile(rt.Logger, &flow); err != nil {
				return err
			}

			if err := rt.Store.SaveFlow(ctx, &flow); err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, flow.ID)

			return err
		},
	}
}

func NewTriggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Publish a trigger event to the event bus",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Required: true},
			&cli.StringFlag{Name: "event", Usage: "Event type, e.g. invoice.created"},
			&cli.StringFlag{Name: "flow", Usage: "Run only this flow"},
			&cli.StringFlag{Name: "data", Usage: "Event payload as a JSON object", Value: "{}"},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			var data map[string]any
			if err := json.Unmarshal([]byte(command.String("data")), &data); err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}

			rt, err := cmd.NewRuntime(ctx, command, "autoflow-worker")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.RequireBus(); err != nil {
				return err
			}

			trigger := events.NewTriggerReceived(command.String("tenant"), command.String("event"), data)
			trigger.FlowID = command.String("flow")

			if err := rt.Bus.PublishTrigger(ctx, trigger); err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, trigger.ID)

			return err
		},
	}
}
