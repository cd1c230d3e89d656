// Package cli implements the command-line interface for shopsight.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eunmann/shopsight/internal/config"
	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/eunmann/shopsight/pkg/tablestore"
)

const usage = `usage: shopsight <command> [options]
commands:
  ingest   build a new table generation from the raw dataset
  serve    start the HTTP API over the current generation
  inspect  print statistics for the current generation`

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "ingest":
		return runIngest(ctx, args[1:], stdout)
	case "serve":
		return runServe(ctx, args[1:])
	case "inspect":
		return runInspect(args[1:], stdout)
	case "help", "-h", "--help":
		_, _ = fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

// commonFlags are accepted by every subcommand and applied after the
// config file and environment.
type commonFlags struct {
	configPath string
	dotEnv     string
	dataDir    string
	logLevel   string
	human      bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default $SHOPSIGHT_CONFIG or ./shopsight.yaml)")
	fs.StringVar(&c.dotEnv, "env-file", "", ".env file merged into the environment (default ./.env)")
	fs.StringVar(&c.dataDir, "data-dir", "", "table store directory")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&c.human, "human", false, "human-readable console logs")
}

// load reads the config, applies flag overrides and initializes logging.
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{Path: c.configPath, DotEnv: c.dotEnv})
	if err != nil {
		return nil, err
	}
	if c.dataDir != "" {
		cfg.Data.Dir = c.dataDir
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.human {
		cfg.Logging.Human = true
	}
	logging.Init(logging.Options{Level: cfg.Logging.Level, Human: cfg.Logging.Human})
	return cfg, nil
}

func openStore(cfg *config.Config) (*tablestore.Store, error) {
	store, err := tablestore.Open(cfg.Data.Dir, tablestore.Options{KeepGenerations: cfg.Data.KeepGenerations})
	if err != nil {
		return nil, fmt.Errorf("open table store: %w", err)
	}
	return store, nil
}
