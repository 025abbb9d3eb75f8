package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/formatter"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   string(formatter.FormatTable),
		Usage:   "Output format: table, json or csv",
	}
}

func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Run a query string against an entity",
		Description: `Apply the same parameters the HTTP API accepts to an entity and print the result.

Examples:
  lyre query invoice "filter=status,sent&order=amount,desc"
  lyre query user "with=department&search=ada"
  lyre query document "relation=owner.department,1&unpaginated=1" --format json`,
		ArgsUsage: " <entity> [query-string]",
		Flags:     []cli.Flag{formatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() < 1 || args.Len() > 2 {
				return fmt.Errorf("expected 1 or 2 arguments, got %d", args.Len())
			}

			format, err := formatter.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			return withApp(ctx, cmd, true, func(ctx context.Context, a *app) error {
				return runQuery(ctx, os.Stdout, a, args.Get(0), args.Get(1), format)
			})
		},
	}
}

func runQuery(ctx context.Context, w io.Writer, a *app, entity, rawQuery string, format formatter.OutputFormat) error {
	params, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(rawQuery), "?"))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeValidation, "malformed query string").
			WithSuggestion("Quote the query string and separate parameters with '&'")
	}

	repo, err := a.repos.For(entity)
	if err != nil {
		return err
	}

	fs, err := a.parser.Parse(ctx, entity, params)
	if err != nil {
		return err
	}

	a.logger.WithField("entity", entity).Debugf("Running query: %s", rawQuery)

	result, err := repo.All(ctx, fs)
	if err != nil {
		return err
	}

	return formatter.NewFormatter().Write(w, a.serializer.Result(repo.Entity().Name, result), format)
}
