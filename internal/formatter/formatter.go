package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kyleking/lyre/internal/resource"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or csv)", s)
	}
}

// maxCellWidth truncates long table cells
const maxCellWidth = 40

// Formatter renders serialized results for the terminal
type Formatter struct{}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Write renders payload, as produced by resource.Serializer.Result, in format
func (f *Formatter) Write(w io.Writer, payload any, format OutputFormat) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(payload)
	}

	var (
		objects []resource.Object
		meta    string
	)

	switch p := payload.(type) {
	case nil:
	case resource.Object:
		if p != nil {
			objects = []resource.Object{p}
		}
	case []resource.Object:
		objects = p
	case resource.Page:
		objects = p.Data
		meta = fmt.Sprintf("Page %d of %d (%d total, %d per page)",
			p.Meta.CurrentPage, p.Meta.LastPage, p.Meta.Total, p.Meta.PerPage)
	default:
		return fmt.Errorf("cannot format %T", payload)
	}

	if format == FormatCSV {
		return f.writeCSV(w, objects)
	}

	if err := f.writeTable(w, objects); err != nil {
		return err
	}

	if meta != "" {
		_, err := fmt.Fprintln(w, meta)
		return err
	}

	return nil
}

func (f *Formatter) writeTable(w io.Writer, objects []resource.Object) error {
	if len(objects) == 0 {
		_, err := fmt.Fprintln(w, "No results")
		return err
	}

	columns := Columns(objects)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}

	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, obj := range objects {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = truncate(f.Cell(obj[c]), maxCellWidth)
		}

		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}

func (f *Formatter) writeCSV(w io.Writer, objects []resource.Object) error {
	cw := csv.NewWriter(w)
	columns := Columns(objects)

	if err := cw.Write(columns); err != nil {
		return err
	}

	for _, obj := range objects {
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = f.Cell(obj[c])
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Columns is the union of keys across objects, "id" first and the rest sorted
func Columns(objects []resource.Object) []string {
	seen := map[string]bool{}

	var columns []string

	for _, obj := range objects {
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" || columns[j] == "id" {
			return columns[i] == "id"
		}

		return columns[i] < columns[j]
	})

	return columns
}

// Cell renders one value. Nested objects show their display column and
// nested lists their size.
func (f *Formatter) Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case resource.Object:
		if x == nil {
			return "-"
		}

		for _, key := range []string{"name", "title", "number", "id"} {
			if display, ok := x[key]; ok {
				return f.Cell(display)
			}
		}

		return "{…}"
	case []resource.Object:
		if len(x) == 1 {
			return "1 item"
		}

		return fmt.Sprintf("%d items", len(x))
	default:
		return fmt.Sprint(x)
	}
}

func truncate(s string, width int) string {
	if width <= 3 || len([]rune(s)) <= width {
		return s
	}

	return string([]rune(s)[:width-3]) + "..."
}
