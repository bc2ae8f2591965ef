package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "autoflow-api",
		Usage:                 "Serve the batch and dry-run invocation endpoint",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewTokenCommand(),
			NewGrantCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
