package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kyleking/lyre/internal/catalog"
)

// RowOption is a functional option for configuring test rows
type RowOption func(map[string]any)

// Set sets an arbitrary column
func Set(column string, value any) RowOption {
	return func(r map[string]any) {
		r[column] = value
	}
}

// WithName sets the name column
func WithName(name string) RowOption {
	return Set("name", name)
}

// WithStatus sets the status column
func WithStatus(status any) RowOption {
	return Set("status", status)
}

// WithAmount sets an invoice amount
func WithAmount(amount float64) RowOption {
	return Set("amount", amount)
}

// WithCustomer sets an invoice's customer
func WithCustomer(id any) RowOption {
	return Set("customer_id", id)
}

// WithOwner sets a document's owner
func WithOwner(id any) RowOption {
	return Set("owner_id", id)
}

// WithDepartment sets a user's department
func WithDepartment(id any) RowOption {
	return Set("department_id", id)
}

// WithIssuedOn sets an invoice date
func WithIssuedOn(t time.Time) RowOption {
	return Set("issued_on", t)
}

func build(defaults map[string]any, opts []RowOption) map[string]any {
	for _, opt := range opts {
		opt(defaults)
	}

	return defaults
}

// NewUser creates an active user payload
func NewUser(opts ...RowOption) map[string]any {
	return build(map[string]any{"name": "Test User", "email": "test@example.com", "status": 1}, opts)
}

// NewDocument creates an active document payload
func NewDocument(opts ...RowOption) map[string]any {
	return build(map[string]any{"title": "Test Document", "body": "", "status": 1}, opts)
}

// NewInvoice creates a draft invoice payload
func NewInvoice(opts ...RowOption) map[string]any {
	return build(map[string]any{
		"number":    "INV-TEST",
		"amount":    100.0,
		"status":    catalog.InvoiceDraft,
		"issued_on": time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	}, opts)
}

// Insert writes payload into table and returns the generated ID
func Insert(t *testing.T, w catalog.Inserter, table string, payload map[string]any) any {
	t.Helper()

	id, err := w.Insert(context.Background(), table, "id", payload)
	if err != nil {
		t.Fatalf("failed to insert into %s: %v", table, err)
	}

	return id
}
