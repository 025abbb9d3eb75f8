package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/lyre/internal/httpapi"
	"github.com/kyleking/lyre/internal/monitor"
)

const (
	shutdownTimeout = 10 * time.Second
	sampleInterval  = time.Minute
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the query API over HTTP",
		Description: `Expose every entity under /api/{entity} with the full query-string surface,
plus /api/{entity}/{id}, /api/{entity}/relationships and /healthz.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides server.addr)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, true, func(ctx context.Context, a *app) error {
				addr := a.cfg.Server.Addr
				if cmd.IsSet("addr") {
					addr = cmd.String("addr")
				}

				return runServe(ctx, a, addr)
			})
		},
	}
}

func newServer(a *app, addr string, mon *monitor.MemoryMonitor) (*http.Server, error) {
	readTimeout, err := time.ParseDuration(a.cfg.Server.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid server read timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(a.cfg.Server.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid server write timeout: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Repositories:  a.repos,
		Parser:        a.parser,
		Resolver:      a.resolver,
		Serializer:    a.serializer,
		Health:        a.store,
		Monitor:       mon,
		Logger:        a.logger,
		RelationDepth: a.cfg.Query.RelationDepth,
	})

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}, nil
}

// runServe blocks until ctx is cancelled, SIGINT/SIGTERM arrives or the listener fails
func runServe(ctx context.Context, a *app, addr string) error {
	mon := monitor.NewMemoryMonitor(sampleInterval, a.logger)

	srv, err := newServer(a, addr, mon)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon.Start(ctx, sampleInterval)

	errCh := make(chan error, 1)

	go func() {
		a.logger.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down HTTP server")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}

		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
