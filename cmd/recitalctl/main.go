package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/iliyamo/recital-program/internal/logging"
)

func main() {
	logger := logging.FromEnv(nil)
	runner := NewRunner(RunnerOpts{Logger: logger, Output: os.Stdout})

	app := &cli.Command{
		Name:     "recitalctl",
		Usage:    "Inspect and build recital program datasets",
		Commands: runner.register(),
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("recitalctl: %v", err)
	}
}
