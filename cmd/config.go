package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/config"
	apperrors "github.com/kyleking/lyre/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Write the active configuration to the config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			if cmd.Bool("save") {
				return runSaveConfig(os.Stdout, cfg)
			}

			return runConfig(os.Stdout, cfg)
		},
	}
}

func runConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return apperrors.NewConfigError("failed to load configuration", "")
	}

	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nDatabase:")
	fmt.Fprintf(w, "  Path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "  Max Connections: %d\n", cfg.Database.MaxConnections)
	fmt.Fprintf(w, "  Query Timeout: %s\n", cfg.Database.QueryTimeout)

	fmt.Fprintln(w, "\nCache:")
	fmt.Fprintf(w, "  Relation Cache Size: %d\n", cfg.Cache.RelationCacheSize)

	fmt.Fprintln(w, "\nQuery:")
	fmt.Fprintf(w, "  Default Per Page: %d\n", cfg.Query.DefaultPerPage)
	fmt.Fprintf(w, "  Max Per Page: %d\n", cfg.Query.MaxPerPage)
	fmt.Fprintf(w, "  Relation Depth: %d\n", cfg.Query.RelationDepth)
	fmt.Fprintf(w, "  Lenient: %t\n", cfg.Query.Lenient)

	fmt.Fprintln(w, "\nServer:")
	fmt.Fprintf(w, "  Address: %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "  Read Timeout: %s\n", cfg.Server.ReadTimeout)
	fmt.Fprintf(w, "  Write Timeout: %s\n", cfg.Server.WriteTimeout)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintln(w, "\nDebug:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Debug.Enabled)
	fmt.Fprintf(w, "  Verbose: %t\n", cfg.Debug.Verbose)

	if cfg.Debug.Enabled {
		fmt.Fprintln(w, "\nRaw Configuration (JSON):")

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Fprintln(w, string(data))
	}

	return nil
}

func runSaveConfig(w io.Writer, cfg *config.Config) error {
	if err := config.SaveConfig(cfg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeConfig, "failed to save configuration")
	}

	fmt.Fprintf(w, "Configuration saved to %s\n", config.Path())

	return nil
}
