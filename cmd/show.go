package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/formatter"
)

func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Display one row of an entity",
		Description: `Look a row up by ID, inactive rows included, with the entity's default relations loaded.`,
		ArgsUsage:   " <entity> <id>",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringSliceFlag{Name: "with", Usage: "Extra relation paths to load (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return fmt.Errorf("expected exactly 2 arguments, got %d", args.Len())
			}

			format, err := formatter.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			return withApp(ctx, cmd, true, func(ctx context.Context, a *app) error {
				return runShow(ctx, os.Stdout, a, args.Get(0), args.Get(1), cmd.StringSlice("with"), format)
			})
		},
	}
}

func runShow(ctx context.Context, w io.Writer, a *app, entity, id string, with []string, format formatter.OutputFormat) error {
	repo, err := a.repos.For(entity)
	if err != nil {
		return err
	}

	row, err := repo.Find(ctx, id, with...)
	if err != nil {
		return err
	}

	return formatter.NewFormatter().Write(w, a.serializer.Row(repo.Entity().Name, row), format)
}
