// Package main is the entry point for the affinity runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/affinity/internal/app"
	"github.com/dshills/affinity/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// flags holds command-line overrides. Empty values keep the loaded config.
type flags struct {
	configPath string
	script     string
	backend    string
	logLevel   string
	watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	f.apply(&cfg)

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (f flags) apply(cfg *config.Config) {
	if f.script != "" {
		cfg.Script = f.script
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.watch {
		cfg.Watch = true
	}
}

func parseFlags() flags {
	var f flags
	var showVersion bool

	flag.StringVar(&f.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&f.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&f.script, "script", "", "Lua script to run on the affinity goroutine")
	flag.BoolVar(&f.watch, "watch", false, "Re-run the script when it changes")
	flag.StringVar(&f.backend, "backend", "", "Backend (loop, terminal, passthrough)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "affinity - run work on a single affinity goroutine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: affinity [options] [script.lua]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables use the %s prefix, e.g. %sDESIGN_MODE=true.\n",
			config.EnvPrefix, config.EnvPrefix)
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("affinity %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	// Validate log level
	switch f.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", f.logLevel)
		os.Exit(1)
	}

	if f.script == "" && flag.NArg() > 0 {
		f.script = flag.Arg(0)
	}
	return f
}
