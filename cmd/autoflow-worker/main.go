package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "autoflow-worker",
		Usage:                 "Drain the automation execution queue",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewBatchCommand(),
			NewIngestCommand(),
			NewMigrateCommand(),
			NewImportFlowCommand(),
			NewTriggerCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
