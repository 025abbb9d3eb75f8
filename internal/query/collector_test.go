package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsRecorder(n int) *recorder {
	r := newRecorder("invoices")
	for i := 1; i <= n; i++ {
		r.rows = append(r.rows, Row{"id": int64(i)})
	}

	r.total = int64(n)

	return r
}

func TestCollectFirst(t *testing.T) {
	result, err := Collect(context.Background(), rowsRecorder(3), NewFilterSet(9).First().Limit(2))
	require.NoError(t, err)

	assert.True(t, result.Single)
	assert.Nil(t, result.Meta)
	assert.Equal(t, Row{"id": int64(1)}, result.First())

	empty, err := Collect(context.Background(), rowsRecorder(0), NewFilterSet(9).First())
	require.NoError(t, err)
	assert.True(t, empty.Single)
	assert.Nil(t, empty.First())
}

func TestCollectLimitBeatsPagination(t *testing.T) {
	result, err := Collect(context.Background(), rowsRecorder(3), NewFilterSet(2).Page(2).Limit(3))
	require.NoError(t, err)

	assert.False(t, result.Single)
	assert.Nil(t, result.Meta)
}

func TestCollectPaginates(t *testing.T) {
	result, err := Collect(context.Background(), rowsRecorder(20), NewFilterSet(9).Page(3))
	require.NoError(t, err)

	require.NotNil(t, result.Meta)
	assert.Equal(t, PageMeta{CurrentPage: 3, LastPage: 3, PerPage: 9, Total: 20}, *result.Meta)
	assert.Len(t, result.Rows, 2)
}

func TestCollectUnpaginated(t *testing.T) {
	result, err := Collect(context.Background(), rowsRecorder(12), NewFilterSet(9).Unpaginated())
	require.NoError(t, err)

	assert.Nil(t, result.Meta)
	assert.Len(t, result.Rows, 12)
}

func TestLastPage(t *testing.T) {
	tests := []struct {
		total    int64
		perPage  int
		expected int
	}{
		{0, 9, 1},
		{9, 9, 1},
		{10, 9, 2},
		{27, 9, 3},
		{5, 0, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LastPage(tt.total, tt.perPage))
	}
}
