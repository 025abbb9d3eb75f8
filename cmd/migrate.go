package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/catalog"
	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/logging"
)

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back schema migrations",
		Description: `Bring the database schema up to date. With --seed, fill an empty database with
the demo catalog. With --rollback-to N, roll back every migration above version N.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "seed", Usage: "Insert demo rows into an empty database"},
			&cli.IntFlag{Name: "rollback-to", Value: -1, Usage: "Roll back to this schema version"},
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "List migrations and whether they are applied",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, false, func(ctx context.Context, a *app) error {
						return runMigrationStatus(ctx, os.Stdout, a)
					})
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := migrateOptions{
				seed:       cmd.Bool("seed"),
				rollbackTo: int(cmd.Int("rollback-to")),
			}

			return withApp(ctx, cmd, false, func(ctx context.Context, a *app) error {
				return runMigrate(ctx, os.Stdout, a, opts)
			})
		},
	}
}

type migrateOptions struct {
	seed       bool
	rollbackTo int
}

func runMigrate(ctx context.Context, w io.Writer, a *app, opts migrateOptions) error {
	defer a.store.Introspector().Reset()

	if opts.rollbackTo >= 0 {
		if opts.seed {
			return apperrors.New(apperrors.ErrTypeValidation, "--seed cannot be combined with --rollback-to")
		}

		err := logging.Track(a.logger, "migrate down", func() error {
			return a.store.Migrations().MigrateDown(ctx, opts.rollbackTo)
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrTypeDatabase, "rollback failed")
		}

		fmt.Fprintf(w, "Rolled back to version %d\n", opts.rollbackTo)

		return nil
	}

	err := logging.Track(a.logger, "migrate up", func() error {
		return a.store.Migrations().MigrateUp(ctx)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeDatabase, "migration failed")
	}

	fmt.Fprintln(w, "Schema is up to date")

	if !opts.seed {
		return nil
	}

	a.store.Introspector().Reset()

	return runSeed(ctx, w, a)
}

func runSeed(ctx context.Context, w io.Writer, a *app) error {
	existing, err := a.store.Query("departments").Count(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeDatabase, "failed to inspect database")
	}

	if existing > 0 {
		fmt.Fprintln(w, "Database already holds data, skipping seed")
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Seeding..."
	s.Start()

	counts, err := catalog.Seed(ctx, a.store, func(table string) {
		s.Lock()
		s.Suffix = " Seeding " + table + "..."
		s.Unlock()
	})

	s.Stop()

	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeDatabase, "seeding failed")
	}

	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	fmt.Fprintln(w, "Seeded:")

	for _, table := range tables {
		fmt.Fprintf(w, "  %-12s %d rows\n", table, counts[table])
	}

	return nil
}

func runMigrationStatus(ctx context.Context, w io.Writer, a *app) error {
	statuses, err := a.store.Migrations().GetMigrationStatus(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeDatabase, "failed to read migration status")
	}

	for _, st := range statuses {
		applied := "pending"
		if st.Applied && st.AppliedAt != nil {
			applied = "applied " + st.AppliedAt.Format("2006-01-02 15:04:05")
		} else if st.Applied {
			applied = "applied"
		}

		fmt.Fprintf(w, "v%-3d %-28s %s\n", st.Version, applied, st.Description)
	}

	return nil
}
