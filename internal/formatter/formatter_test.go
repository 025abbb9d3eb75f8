package formatter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/resource"
)

var invoices = []resource.Object{
	{"id": int64(1), "number": "INV-001", "amount": 120.5, "customer": resource.Object{"id": int64(1), "name": "Ada"}},
	{"id": int64(2), "number": "INV-002", "amount": 75.0, "customer": nil},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" csv ", FormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnsPutsIDFirst(t *testing.T) {
	assert.Equal(t, []string{"id", "amount", "customer", "number"}, Columns(invoices))
}

func TestCell(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "-"},
		{"float", 120.5, "120.5"},
		{"whole float", 75.0, "75"},
		{"int", int64(3), "3"},
		{"bool", true, "true"},
		{"object with name", resource.Object{"id": 1, "name": "Ada"}, "Ada"},
		{"object with title", resource.Object{"id": 1, "title": "Notes"}, "Notes"},
		{"object with id only", resource.Object{"id": 7}, "7"},
		{"one item", []resource.Object{{}}, "1 item"},
		{"many items", []resource.Object{{}, {}}, "2 items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Cell(tt.in))
		})
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer

	page := resource.Page{
		Data: invoices,
		Meta: query.PageMeta{CurrentPage: 1, LastPage: 2, PerPage: 2, Total: 3},
	}

	require.NoError(t, NewFormatter().Write(&buf, page, FormatTable))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ID", "AMOUNT", "CUSTOMER", "NUMBER"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "120.5", "Ada", "INV-001"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "75", "-", "INV-002"}, strings.Fields(lines[2]))
	assert.Equal(t, "Page 1 of 2 (3 total, 2 per page)", lines[3])
}

func TestWriteEmptyAndSingle(t *testing.T) {
	f := NewFormatter()

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, nil, FormatTable))
	assert.Equal(t, "No results\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Write(&buf, invoices[0], FormatTable))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)

	assert.Error(t, f.Write(&buf, 42, FormatTable))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Write(&buf, invoices, FormatCSV))
	assert.Equal(t, "id,amount,customer,number\n1,120.5,Ada,INV-001\n2,75,-,INV-002\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Write(&buf, []resource.Object{{"id": 1}}, FormatJSON))
	assert.JSONEq(t, `[{"id":1}]`, buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
