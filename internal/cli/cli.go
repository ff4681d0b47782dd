package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vk/ceautotest/internal/app"
	"github.com/vk/ceautotest/internal/config"
	"github.com/vk/ceautotest/internal/ctxlog"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitFatal = 1
	ExitUsage = 2
)

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

func fatalError(err error) *ExitError {
	return &ExitError{Code: ExitFatal, Message: err.Error()}
}

// Parse processes command-line arguments. It returns the merged and
// validated configuration, a boolean indicating if the program should exit
// cleanly, or an ExitError.
func Parse(ctx context.Context, args []string, output io.Writer) (*app.Config, bool, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("CLI parser started.")

	cfg := app.DefaultConfig()
	flagSet := flag.NewFlagSet("ceautotest", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
ceautotest - builds, orders and runs TI-84 Plus CE SDK tests.

Usage:
  ceautotest [options] [TESTS_DIR]

Arguments:
  TESTS_DIR
    Root of the test suite (same as --tests).

Options:
`)
		flagSet.PrintDefaults()
	}

	testsFlag := flagSet.String("tests", cfg.TestsDir, "Root directory of the test suite.")
	configFlag := flagSet.String("config", "", "Suite file. Defaults to "+config.FileName+" in the tests directory when present.")
	romFlag := flagSet.String("rom", cfg.ROM, "ROM image handed to the emulator.")
	ignoreFlag := flagSet.String("ignore-list", "", "Ignore list. Defaults to the one in the tests directory.")
	cleanFlag := flagSet.Bool("clean", cfg.Clean, "Clean every test before building it.")
	abortFlag := flagSet.Bool("abort-on-failure", cfg.AbortOnFailure, "Stop at the first failed test.")
	traceFlag := flagSet.Bool("trace", cfg.Trace, "Print the dependency trace of every test.")
	printBatchesFlag := flagSet.Bool("print-batches", cfg.PrintBatches, "Print the batch plan before executing.")
	planFileFlag := flagSet.String("plan-file", "", "Write the batch plan as YAML to this file.")
	workersFlag := flagSet.Int("workers", cfg.Workers, "Number of tests built or executed at once.")
	buildTimeoutFlag := flagSet.Duration("build-timeout", cfg.BuildTimeout, "Time limit per build step. 0 is unlimited.")
	execTimeoutFlag := flagSet.Duration("exec-timeout", cfg.ExecTimeout, "Time limit per test execution. 0 is unlimited.")
	exhaustiveFlag := flagSet.Bool("exhaustive-promotion", cfg.ExhaustivePromotion, "Promote every deferred test that becomes runnable, not just the first.")
	skipBuildFlag := flagSet.Bool("skip-build", cfg.SkipBuild, "Schedule and execute from the stored test records without building.")
	logFormatFlag := flagSet.String("log-format", cfg.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", cfg.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health and metrics server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if flagSet.NArg() > 1 {
		return nil, false, usageError("too many arguments: %s", strings.Join(flagSet.Args(), " "))
	}
	logger.Debug("Arguments parsed successfully.")

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["config"] && *configFlag == "" {
		return nil, false, usageError("--config needs a file name")
	}

	switch {
	case set["tests"]:
		cfg.TestsDir = *testsFlag
	case flagSet.NArg() == 1:
		cfg.TestsDir = flagSet.Arg(0)
	}

	suite, err := loadSuite(ctx, cfg.TestsDir, *configFlag, set["config"])
	if err != nil {
		return nil, false, fatalError(err)
	}
	cfg.ApplySuite(suite)

	overrides := map[string]func(c *app.Config){
		"rom":                  func(c *app.Config) { c.ROM = *romFlag },
		"ignore-list":          func(c *app.Config) { c.IgnoreList = *ignoreFlag },
		"clean":                func(c *app.Config) { c.Clean = *cleanFlag },
		"abort-on-failure":     func(c *app.Config) { c.AbortOnFailure = *abortFlag },
		"trace":                func(c *app.Config) { c.Trace = *traceFlag },
		"print-batches":        func(c *app.Config) { c.PrintBatches = *printBatchesFlag },
		"plan-file":            func(c *app.Config) { c.PlanFile = *planFileFlag },
		"workers":              func(c *app.Config) { c.Workers = *workersFlag },
		"build-timeout":        func(c *app.Config) { c.BuildTimeout = *buildTimeoutFlag },
		"exec-timeout":         func(c *app.Config) { c.ExecTimeout = *execTimeoutFlag },
		"exhaustive-promotion": func(c *app.Config) { c.ExhaustivePromotion = *exhaustiveFlag },
		"skip-build":           func(c *app.Config) { c.SkipBuild = *skipBuildFlag },
		"log-format":           func(c *app.Config) { c.LogFormat = strings.ToLower(*logFormatFlag) },
		"log-level":            func(c *app.Config) { c.LogLevel = strings.ToLower(*logLevelFlag) },
		"healthcheck-port":     func(c *app.Config) { c.HealthcheckPort = *healthPortFlag },
	}
	flagSet.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply(&cfg)
		}
	})
	logger.Debug("CLI parameter merge complete.", "suite_file", cfg.SuiteFile)

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, fatalError(err)
	}

	logger.Debug("CLI parser finished successfully.", "config", validated)
	return validated, false, nil
}

// loadSuite loads the explicit suite file, or the default one in testsDir
// when it exists.
func loadSuite(ctx context.Context, testsDir, path string, explicit bool) (*config.Suite, error) {
	if explicit {
		return config.Load(ctx, path)
	}
	return config.LoadOptional(ctx, filepath.Join(testsDir, config.FileName))
}
