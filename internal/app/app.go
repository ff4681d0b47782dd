package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vk/ceautotest/internal/console"
	"github.com/vk/ceautotest/internal/demangle"
	"github.com/vk/ceautotest/internal/process"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	cfg       *Config
	logger    *slog.Logger
	console   *console.Console
	runner    process.Runner
	demangler demangle.Demangler
	metrics   *metrics
	runID     string

	httpServer *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithRunner replaces the process runner used for every external tool.
func WithRunner(r process.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithDemangler replaces the external demangler.
func WithDemangler(d demangle.Demangler) Option {
	return func(a *App) { a.demangler = d }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(a *App) { a.runID = id }
}

// NewApp is the constructor for the main application. Console output goes
// to outW and logs to logW; the App never touches the global logger.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) *App {
	a := &App{
		cfg:     cfg,
		console: console.New(outW),
		runner:  process.NewRunner(),
		metrics: newMetrics(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.demangler == nil {
		a.demangler = demangle.NewExternal(a.runner, cfg.TestsDir, cfg.DemanglerCommand)
	}
	a.logger = newLogger(cfg.LogLevel, cfg.LogFormat, logW).With("run_id", a.runID)
	a.logger.Debug("Logger configured successfully.")
	return a
}
