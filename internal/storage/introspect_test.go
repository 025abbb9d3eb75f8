package storage

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/schema"
)

func newMockIntrospector(t *testing.T) (*Introspector, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Failed to close mock db: %v", closeErr)
		}
	})

	in, err := NewIntrospector(sqlx.NewDb(db, "sqlmock"), 8)
	require.NoError(t, err)

	return in, mock
}

var columnsQueryPattern = regexp.QuoteMeta("SELECT column_name, data_type FROM information_schema.columns")

func TestIntrospectorCachesTables(t *testing.T) {
	in, mock := newMockIntrospector(t)
	ctx := context.Background()

	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("invoices").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "INTEGER").
			AddRow("amount", "DOUBLE").
			AddRow("issued_on", "DATE").
			AddRow("number", "VARCHAR"))

	typ, err := in.ColumnType(ctx, "invoices", "amount")
	require.NoError(t, err)
	assert.Equal(t, schema.TypeFloat, typ)

	// Served from cache: no second expectation is registered.
	has, err := in.HasColumn(ctx, "invoices", "issued_on")
	require.NoError(t, err)
	assert.True(t, has)

	cols, err := in.ColumnListing(ctx, "invoices")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount", "issued_on", "number"}, cols)

	typ, err = in.ColumnType(ctx, "invoices", "missing")
	require.NoError(t, err)
	assert.Equal(t, schema.TypeUnknown, typ)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), in.Stats().Misses)
}

func TestIntrospectorDoesNotCacheMissingTables(t *testing.T) {
	in, mock := newMockIntrospector(t)
	ctx := context.Background()

	empty := sqlmock.NewRows([]string{"column_name", "data_type"})
	mock.ExpectQuery(columnsQueryPattern).WithArgs("later").WillReturnRows(empty)
	mock.ExpectQuery(columnsQueryPattern).WithArgs("later").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).AddRow("id", "BIGINT"))

	has, err := in.HasColumn(ctx, "later", "id")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = in.HasColumn(ctx, "later", "id")
	require.NoError(t, err)
	assert.True(t, has)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospectorReset(t *testing.T) {
	in, mock := newMockIntrospector(t)
	ctx := context.Background()

	for range 2 {
		mock.ExpectQuery(columnsQueryPattern).WithArgs("users").
			WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).AddRow("id", "INTEGER"))
	}

	_, err := in.ColumnListing(ctx, "users")
	require.NoError(t, err)

	in.Reset()

	_, err = in.ColumnListing(ctx, "users")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospectorPropagatesErrors(t *testing.T) {
	in, mock := newMockIntrospector(t)

	mock.ExpectQuery(columnsQueryPattern).WithArgs("users").WillReturnError(assert.AnError)

	_, err := in.ColumnType(context.Background(), "users", "id")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
