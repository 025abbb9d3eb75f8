package testutil

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/kyleking/lyre/internal/catalog"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/storage"
)

// RunConcurrent executes the given function concurrently n times.
// Waits for all goroutines to complete before returning.
// Any panics are captured and reported as test failures.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := range n {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()
			fn(workerID)
		}(i)
	}

	wg.Wait()
}

// AssertNoRaces runs fn concurrently; pair with `go test -race`
func AssertNoRaces(t *testing.T, fn func(), iterations int) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping race detection test in short mode")
	}

	RunConcurrent(t, iterations, func(_ int) {
		fn()
	})
}

// Env wires a migrated DuckDB store to the bundled catalog
type Env struct {
	Store    *storage.Store
	Registry *registry.Registry
	Resolver *registry.Resolver
	Pipeline *query.Pipeline
	Parser   *query.Parser
}

// EnvOption configures NewEnv
type EnvOption func(*envConfig)

type envConfig struct {
	seed    bool
	lenient bool
}

// WithoutSeed leaves the tables empty
func WithoutSeed() EnvOption {
	return func(c *envConfig) { c.seed = false }
}

// Strict makes unresolvable relation paths fail instead of being skipped
func Strict() EnvOption {
	return func(c *envConfig) { c.lenient = false }
}

// NewEnv opens a temporary store, migrates it and, unless WithoutSeed is
// given, fills it with catalog.Seed.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	cfg := envConfig{seed: true, lenient: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := storage.NewTestStore(t)

	reg, err := catalog.Registry()
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	resolver, err := registry.NewResolver(reg, registry.WithLenient(cfg.lenient))
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	if cfg.seed {
		if _, err := catalog.Seed(context.Background(), store, nil); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}

	logger := logging.Discard()

	return &Env{
		Store:    store,
		Registry: reg,
		Resolver: resolver,
		Pipeline: query.NewPipeline(resolver, store.Introspector(),
			query.WithScopes(catalog.Scopes()), query.WithLogger(logger)),
		Parser: query.NewParser(resolver, store.Introspector(),
			query.Defaults{PerPage: query.DefaultPerPage, MaxPerPage: 100}, logger),
	}
}

// Run parses rawQuery for entity, applies it to a fresh base query and collects the result
func (e *Env) Run(t *testing.T, entity, rawQuery string) *query.Result {
	t.Helper()

	result, err := e.TryRun(entity, rawQuery)
	if err != nil {
		t.Fatalf("query %s?%s failed: %v", entity, rawQuery, err)
	}

	return result
}

// TryRun is Run returning the error instead of failing the test
func (e *Env) TryRun(entity, rawQuery string) (*query.Result, error) {
	ctx := context.Background()

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	fs, err := e.Parser.Parse(ctx, entity, params)
	if err != nil {
		return nil, err
	}

	return e.Apply(entity, fs)
}

// Apply runs fs against entity's table and collects the result
func (e *Env) Apply(entity string, fs query.FilterSet) (*query.Result, error) {
	ctx := context.Background()

	ent, err := e.Registry.Lookup(entity)
	if err != nil {
		return nil, err
	}

	q, err := e.Pipeline.Apply(ctx, entity, e.Store.Query(ent.Table), fs)
	if err != nil {
		return nil, err
	}

	return query.Collect(ctx, q, fs)
}

// Column extracts one column from every row
func Column(rows []query.Row, column string) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[column]
	}

	return out
}
