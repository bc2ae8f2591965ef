package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API server",
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, command, "autoflow-api")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			port := rt.Config.HTTP.Port
			if command.IsSet("port") {
				port = command.Int("port")
			}

			handlers := web.NewHandlers(
				rt.Logger,
				rt.Engine.Processor,
				rt.Engine.Tracer,
				rt.Store,
				rt.Engine.Authorizer,
				validator.New(validator.WithRequiredStructEnabled()),
				rt.Store,
			)
			app := web.NewApp(handlers)

			go func() {
				<-ctx.Done()

				rt.Logger.Info("Shutting down autoflow API")

				if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
					rt.Logger.Error("Failed to shutdown API server", "error", err)
				}
			}()

			rt.Logger.InfoContext(ctx, "Initializing autoflow API", "port", port)

			return app.Listen(":" + strconv.Itoa(port))
		},
	}
}

func NewTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a user token for dry-run calls",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{Name: "user", Usage: "User id (token subject)", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: time.Hour},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "autoflow-api")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			token, err := rt.Engine.Authorizer.IssueToken(command.String("user"), command.Duration("ttl"))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, token)

			return err
		},
	}
}

func NewGrantCommand() *cli.Command {
	return &cli.Command{
		Name:  "grant",
		Usage: "Make a user a member of a tenant",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{Name: "user", Usage: "User id", Required: true},
			&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Required: true},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "autoflow-api")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			err = rt.Store.AddTenantMember(ctx, command.String("user"), command.String("tenant"))
			if err != nil {
				return err
			}

			rt.Logger.InfoContext(ctx, "Granted tenant membership", "user_id", command.String("user"), "tenant_id", command.String("tenant"))

			return nil
		},
	}
}
