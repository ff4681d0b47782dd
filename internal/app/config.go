package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/vk/ceautotest/internal/callgraph"
	"github.com/vk/ceautotest/internal/config"
	"github.com/vk/ceautotest/internal/demangle"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/toolchain"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	TestsDir string
	ROM      string
	// IgnoreList defaults to the ignore list at the root of TestsDir.
	IgnoreList string
	// SuiteFile is the suite file the configuration was merged from, if any.
	SuiteFile string

	Clean               bool
	AbortOnFailure      bool
	Trace               bool
	PrintBatches        bool
	ExhaustivePromotion bool
	SkipBuild           bool
	PlanFile            string

	Workers      int
	BuildTimeout time.Duration
	ExecTimeout  time.Duration

	// EntryListing is relative to a test's obj directory.
	EntryListing string
	EntryPoint   string

	BuildCommand     []string
	HarnessCommand   []string
	DemanglerCommand []string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// Default per-invocation time limits. Zero disables a limit.
const (
	DefaultBuildTimeout = 10 * time.Minute
	DefaultExecTimeout  = 5 * time.Minute
)

// DefaultConfig returns the built-in defaults, the lowest configuration
// layer.
func DefaultConfig() Config {
	return Config{
		TestsDir:         "tests",
		ROM:              "testing_rom.rom",
		Workers:          runtime.NumCPU(),
		BuildTimeout:     DefaultBuildTimeout,
		ExecTimeout:      DefaultExecTimeout,
		EntryListing:     filepath.Join("src", "main.cpp.src"),
		EntryPoint:       callgraph.DefaultEntryPoint,
		BuildCommand:     toolchain.DefaultBuildCommand,
		HarnessCommand:   toolchain.DefaultHarnessCommand,
		DemanglerCommand: demangle.DefaultCommand,
		LogFormat:        "text",
		LogLevel:         "warn",
	}
}

// ApplySuite overlays every attribute set in the suite file.
func (c *Config) ApplySuite(s *config.Suite) {
	if s == nil {
		return
	}
	c.SuiteFile = s.Path
	setString(&c.ROM, s.ROM)
	setString(&c.IgnoreList, s.IgnoreList)
	setString(&c.PlanFile, s.PlanFile)
	setString(&c.EntryListing, s.EntryListing)
	setString(&c.EntryPoint, s.EntryPoint)
	setBool(&c.Clean, s.Clean)
	setBool(&c.AbortOnFailure, s.AbortOnFailure)
	setBool(&c.Trace, s.Trace)
	setBool(&c.PrintBatches, s.PrintBatches)
	setBool(&c.ExhaustivePromotion, s.ExhaustivePromotion)
	if s.Workers != nil {
		c.Workers = *s.Workers
	}
	if s.BuildTimeout != nil {
		c.BuildTimeout = *s.BuildTimeout
	}
	if s.ExecTimeout != nil {
		c.ExecTimeout = *s.ExecTimeout
	}
	if s.BuildCommand != nil {
		c.BuildCommand = s.BuildCommand
	}
	if s.HarnessCommand != nil {
		c.HarnessCommand = s.HarnessCommand
	}
	if s.DemanglerCommand != nil {
		c.DemanglerCommand = s.DemanglerCommand
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// NewConfig validates cfg, fills in derived defaults and returns the
// result.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.TestsDir == "" {
		return nil, errors.New("TestsDir is a required configuration field and cannot be empty")
	}
	if cfg.ROM == "" {
		return nil, errors.New("ROM is a required configuration field and cannot be empty")
	}
	if cfg.IgnoreList == "" {
		cfg.IgnoreList = filepath.Join(cfg.TestsDir, registry.IgnoreListFileName)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.BuildTimeout < 0 || cfg.ExecTimeout < 0 {
		return nil, errors.New("timeouts must not be negative")
	}
	if cfg.EntryListing == "" || cfg.EntryPoint == "" {
		return nil, errors.New("entry listing and entry point cannot be empty")
	}
	for name, cmd := range map[string][]string{
		"build":     cfg.BuildCommand,
		"harness":   cfg.HarnessCommand,
		"demangler": cfg.DemanglerCommand,
	} {
		if len(cmd) == 0 || cmd[0] == "" {
			return nil, fmt.Errorf("%s command cannot be empty", name)
		}
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
