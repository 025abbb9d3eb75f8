package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/catalog"
	"github.com/kyleking/lyre/internal/config"
	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/formatter"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/storage"
)

func newTestApp(t *testing.T, seed bool) *app {
	t.Helper()

	store := storage.NewTestStore(t)

	if seed {
		_, err := catalog.Seed(context.Background(), store, nil)
		require.NoError(t, err)
	}

	a, err := newApp(config.DefaultConfig(), store, logging.Discard())
	require.NoError(t, err)

	return a
}

func TestRunQueryJSON(t *testing.T) {
	a := newTestApp(t, true)

	var buf bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &buf, a, catalog.Invoice,
		"filter=status,sent&order=amount,desc", formatter.FormatJSON))

	var page struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &page))

	require.Len(t, page.Data, 2)
	assert.Equal(t, "INV-005", page.Data[0]["number"])
	assert.Equal(t, "INV-002", page.Data[1]["number"])
	assert.Equal(t, 2.0, page.Meta["total"])
}

func TestRunQueryTable(t *testing.T) {
	a := newTestApp(t, true)

	var buf bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &buf, a, catalog.Invoice,
		"?order=amount,desc&per_page=2", formatter.FormatTable))

	out := buf.String()
	assert.Contains(t, out, "INV-003")
	assert.Contains(t, out, "Page 1 of 3 (5 total, 2 per page)")
	assert.NotContains(t, out, "CUSTOMER_ID")
}

func TestRunQueryErrors(t *testing.T) {
	a := newTestApp(t, true)

	tests := []struct {
		name     string
		entity   string
		raw      string
		wantType apperrors.ErrorType
	}{
		{"unknown entity", "ghost", "", apperrors.ErrTypeNotFound},
		{"malformed query string", catalog.User, "filter=%zz", apperrors.ErrTypeValidation},
		{"unmapped status", catalog.User, "status=archived", apperrors.ErrTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			err := runQuery(context.Background(), &buf, a, tt.entity, tt.raw, formatter.FormatTable)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.GetType(err))
			assert.Empty(t, buf.String())
		})
	}
}

func TestRunShow(t *testing.T) {
	a := newTestApp(t, true)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, runShow(ctx, &buf, a, catalog.User, "2", []string{"documents"}, formatter.FormatJSON))

	var obj map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &obj))
	assert.Equal(t, "Grace Hopper", obj["name"])
	assert.Len(t, obj["documents"], 2)

	buf.Reset()
	err := runShow(ctx, &buf, a, catalog.User, "99", nil, formatter.FormatTable)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestRunEntities(t *testing.T) {
	a := newTestApp(t, false)

	var buf bytes.Buffer
	require.NoError(t, runEntities(&buf, a, 1, formatter.FormatTable))

	out := buf.String()
	assert.Contains(t, out, "user (users)\n  department\n  documents\n  invoices\n")
	assert.Contains(t, out, "invoice (invoices)\n  customer\n")

	buf.Reset()
	require.NoError(t, runEntities(&buf, a, 2, formatter.FormatJSON))

	var entities []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entities))
	require.Len(t, entities, 4)

	for _, e := range entities {
		if e["entity"] == catalog.Invoice {
			assert.Equal(t, []any{"customer", "customer.department", "customer.documents", "customer.invoices"}, e["relationships"])
		}
	}

	assert.Error(t, runEntities(&buf, a, 0, formatter.FormatTable))
}

func TestRunMigrateSeedAndRollback(t *testing.T) {
	a := newTestApp(t, false)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, runMigrate(ctx, &buf, a, migrateOptions{seed: true, rollbackTo: -1}))
	assert.Contains(t, buf.String(), "Schema is up to date")
	assert.Contains(t, buf.String(), "users        4 rows")

	buf.Reset()
	require.NoError(t, runMigrate(ctx, &buf, a, migrateOptions{seed: true, rollbackTo: -1}))
	assert.Contains(t, buf.String(), "skipping seed")

	err := runMigrate(ctx, &buf, a, migrateOptions{seed: true, rollbackTo: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	buf.Reset()
	require.NoError(t, runMigrate(ctx, &buf, a, migrateOptions{rollbackTo: 1}))
	assert.Equal(t, "Rolled back to version 1\n", buf.String())

	ok, err := a.store.Introspector().HasColumn(ctx, "invoices", "id")
	require.NoError(t, err)
	assert.False(t, ok)

	buf.Reset()
	require.NoError(t, runMigrationStatus(ctx, &buf, a))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "applied")
	assert.Contains(t, lines[1], "pending")
}

func TestRunConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	var buf bytes.Buffer
	require.NoError(t, runConfig(&buf, cfg))

	out := buf.String()
	for _, want := range []string{
		"Active Configuration:",
		"Default Per Page: 9",
		"Max Per Page: 100",
		"Lenient: true",
		"Address: :8080",
		"Level: info",
	} {
		assert.Contains(t, out, want)
	}

	assert.NotContains(t, out, "Raw Configuration")

	cfg.Debug.Enabled = true

	buf.Reset()
	require.NoError(t, runConfig(&buf, cfg))
	assert.Contains(t, buf.String(), `"default_per_page": 9`)

	assert.Error(t, runConfig(&buf, nil))
}

func TestRunSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("LYRE_CONFIG", path)

	cfg := config.DefaultConfig()
	cfg.Server.Addr = ":9191"
	cfg.Query.MaxPerPage = 25

	var buf bytes.Buffer
	require.NoError(t, runSaveConfig(&buf, cfg))
	assert.Equal(t, "Configuration saved to "+path+"\n", buf.String())
	assert.FileExists(t, path)

	loaded, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9191", loaded.Server.Addr)
	assert.Equal(t, 25, loaded.Query.MaxPerPage)
}

func TestNewServer(t *testing.T) {
	a := newTestApp(t, true)

	srv, err := newServer(a, "127.0.0.1:0", nil)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/department?order=id,asc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Engineering")

	a.cfg.Server.ReadTimeout = "soon"
	_, err = newServer(a, "127.0.0.1:0", nil)
	assert.Error(t, err)
}

func TestRunServeStopsWithContext(t *testing.T) {
	a := newTestApp(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- runServe(ctx, a, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer

	printError(&buf, apperrors.NewNotFound(catalog.User, 9))
	assert.Contains(t, buf.String(), "Error: ")

	buf.Reset()
	printError(&buf, apperrors.Wrap(errors.New("disk full"), apperrors.ErrTypeDatabase, "write failed").
		WithSuggestion("Free some space"))
	assert.Equal(t, "Error: write failed\nCause: disk full\n  - Free some space\n", buf.String())

	buf.Reset()
	printError(&buf, errors.New("plain"))
	assert.Equal(t, "Error: plain\n", buf.String())
}

func TestExecuteContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "lyre.db")
	cfg.Logging.Level = "error"

	ctx := config.WithContext(context.Background(), cfg)

	require.NoError(t, ExecuteContext(ctx, []string{"lyre", "migrate", "--seed"}))
	require.NoError(t, ExecuteContext(ctx, []string{"lyre", "query", "--format", "json", catalog.Invoice, "filter=status,paid"}))

	err := ExecuteContext(ctx, []string{"lyre", "show", "ghost", "1"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	assert.Error(t, ExecuteContext(ctx, []string{"lyre", "query"}))
}
