package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/config"
	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/logging"
)

var version = "dev"

// NewRootCommand builds the lyre command tree
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "lyre",
		Usage:   "Filter, sort and paginate entity data with query strings",
		Version: version,
		Description: `lyre turns query-string parameters (filter, range, relation, search, order,
pagination) into queries against a local DuckDB database holding the bundled
catalog of departments, users, documents and invoices.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-path", Usage: "DuckDB database path"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format: text or json"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log at debug level"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug output"},
		},
		Commands: []*cli.Command{
			QueryCommand(),
			ShowCommand(),
			ServeCommand(),
			MigrateCommand(),
			EntitiesCommand(),
			ConfigCommand(),
		},
	}
}

func Execute() error {
	return ExecuteContext(context.Background(), os.Args)
}

// ExecuteContext runs the command tree with args. A configuration stored on
// ctx with config.WithContext replaces the file, environment and flags.
func ExecuteContext(ctx context.Context, args []string) error {
	if err := NewRootCommand().Run(ctx, args); err != nil {
		printError(os.Stderr, err)
		return err
	}

	return nil
}

func printError(w io.Writer, err error) {
	structured, ok := apperrors.As(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Error: %s\n", structured.Message)

	if structured.Cause != nil {
		fmt.Fprintf(w, "Cause: %v\n", structured.Cause)
	}

	for _, s := range structured.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}

// loadConfig returns the configuration for cmd: the one on ctx when present,
// otherwise file and environment with global flag overrides applied.
func loadConfig(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	if cfg := config.FromContext(ctx); cfg != nil {
		return cfg, nil
	}

	overrides := map[string]any{}

	for _, name := range []string{"db-path", "log-level", "log-format"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	for _, name := range []string{"verbose", "debug"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.Bool(name)
		}
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Run 'lyre config' to inspect the active settings")
	}

	cfg.ExpandAllPaths()

	return cfg, nil
}

// newLogger builds the logger cfg asks for, falling back to stderr
func newLogger(cfg *config.Config) *logging.Logger {
	logCfg := cfg.Logging
	if cfg.Debug.Verbose || cfg.Debug.Enabled {
		logCfg.Level = "debug"
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		logger = logging.GetLogger()
		logger.WithError(err).Warn("Falling back to stderr logging")
	}

	return logger
}

// withApp loads configuration, opens the store and hands both to fn
func withApp(ctx context.Context, cmd *cli.Command, migrate bool, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Close()

	a, err := initializeStorage(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer a.Close()

	return logging.Track(logger, cmd.Name, func() error { return fn(ctx, a) })
}
