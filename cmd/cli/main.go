package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vk/ceautotest/internal/app"
	"github.com/vk/ceautotest/internal/cli"
	"github.com/vk/ceautotest/internal/ctxlog"
)

// main is the entrypoint for the ceautotest application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(cli.ExitFatal)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	ctx = ctxlog.WithLogger(ctx, slog.Default())

	appConfig, shouldExit, err := cli.Parse(ctx, args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Fatal errors are already diagnosed on the console; the exit code is
	// all that is left to report.
	if err := app.NewApp(outW, logW, appConfig).Run(ctx); err != nil {
		return &cli.ExitError{Code: cli.ExitFatal, Message: err.Error()}
	}
	return nil
}
