package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/formatter"
	"github.com/kyleking/lyre/internal/resource"
)

func EntitiesCommand() *cli.Command {
	return &cli.Command{
		Name:        "entities",
		Usage:       "List registered entities and their relation paths",
		Description: `Show every entity with its table and the dotted relation paths reachable from it.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "depth", Usage: "Relation depth to expand (defaults to query.relation_depth)"},
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			return withApp(ctx, cmd, false, func(_ context.Context, a *app) error {
				depth := a.cfg.Query.RelationDepth
				if cmd.IsSet("depth") {
					depth = int(cmd.Int("depth"))
				}

				return runEntities(os.Stdout, a, depth, format)
			})
		},
	}
}

func runEntities(w io.Writer, a *app, depth int, format formatter.OutputFormat) error {
	if depth < 1 {
		return fmt.Errorf("depth must be at least 1, got %d", depth)
	}

	var objects []resource.Object

	for _, name := range a.registry.Names() {
		e, _ := a.registry.Entity(name)

		paths, err := a.resolver.Relationships(name, depth)
		if err != nil {
			return err
		}

		objects = append(objects, resource.Object{
			"entity":        name,
			"table":         e.Table,
			"relationships": paths,
		})
	}

	if format != formatter.FormatTable {
		return formatter.NewFormatter().Write(w, objects, format)
	}

	for _, obj := range objects {
		fmt.Fprintf(w, "%s (%s)\n", obj["entity"], obj["table"])

		paths, _ := obj["relationships"].([]string)
		if len(paths) == 0 {
			fmt.Fprintln(w, "  no relations")
			continue
		}

		fmt.Fprintf(w, "  %s\n", strings.Join(paths, "\n  "))
	}

	return nil
}
