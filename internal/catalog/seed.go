package catalog

import (
	"context"
	"fmt"
	"time"
)

// Inserter writes one row and returns its generated ID
type Inserter interface {
	Insert(ctx context.Context, table, idColumn string, payload map[string]any) (any, error)
}

// SeedCounts reports how many rows Seed wrote per table
type SeedCounts map[string]int

// Seed writes a small demo data set: two departments, four users (one
// inactive), their documents and invoices. Progress, when non-nil, is
// called with each table name before it is filled.
func Seed(ctx context.Context, w Inserter, progress func(table string)) (SeedCounts, error) {
	counts := SeedCounts{}
	report := func(table string) {
		if progress != nil {
			progress(table)
		}
	}

	insert := func(table string, payload map[string]any) (any, error) {
		id, err := w.Insert(ctx, table, "id", payload)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", table, err)
		}

		counts[table]++

		return id, nil
	}

	report("departments")

	departments := map[string]any{}
	for _, name := range []string{"Engineering", "Finance"} {
		id, err := insert("departments", map[string]any{"name": name, "status": 1})
		if err != nil {
			return counts, err
		}

		departments[name] = id
	}

	report("users")

	users := map[string]any{}
	for _, u := range []struct {
		name, email, department string
		status                  int
	}{
		{"Ada Lovelace", "ada@example.com", "Engineering", 1},
		{"Grace Hopper", "grace@example.com", "Engineering", 1},
		{"Bob Ledger", "bob@example.com", "Finance", 1},
		{"Old Timer", "old@example.com", "Finance", 0},
	} {
		id, err := insert("users", map[string]any{
			"name":          u.name,
			"email":         u.email,
			"department_id": departments[u.department],
			"status":        u.status,
		})
		if err != nil {
			return counts, err
		}

		users[u.name] = id
	}

	report("documents")

	for _, d := range []struct{ title, body, owner string }{
		{"Analytical Engine Notes", "Notes on the engine", "Ada Lovelace"},
		{"Compiler Design", "A-0 system draft", "Grace Hopper"},
		{"Debugging Log", "First actual bug found", "Grace Hopper"},
		{"Quarterly Report", "Numbers and more numbers", "Bob Ledger"},
	} {
		if _, err := insert("documents", map[string]any{
			"title":    d.title,
			"body":     d.body,
			"owner_id": users[d.owner],
			"status":   1,
		}); err != nil {
			return counts, err
		}
	}

	report("invoices")

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	for i, inv := range []struct {
		customer string
		amount   float64
		status   string
	}{
		{"Ada Lovelace", 120.50, InvoicePaid},
		{"Ada Lovelace", 75, InvoiceSent},
		{"Grace Hopper", 990, InvoiceDraft},
		{"Bob Ledger", 42, InvoiceVoid},
		{"Bob Ledger", 310, InvoiceSent},
	} {
		if _, err := insert("invoices", map[string]any{
			"number":      fmt.Sprintf("INV-%03d", i+1),
			"customer_id": users[inv.customer],
			"amount":      inv.amount,
			"status":      inv.status,
			"issued_on":   base.AddDate(0, i, 0),
		}); err != nil {
			return counts, err
		}
	}

	return counts, nil
}
