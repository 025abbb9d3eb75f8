// Package catalog declares the entities bundled with lyre and the named
// operations they expose.
package catalog

import (
	"fmt"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/registry"
	"github.com/kyleking/lyre/internal/schema"
)

// Entity names
const (
	Department = "department"
	User       = "user"
	Document   = "document"
	Invoice    = "invoice"
)

// Invoice statuses, stored verbatim
const (
	InvoiceDraft = "draft"
	InvoiceSent  = "sent"
	InvoicePaid  = "paid"
	InvoiceVoid  = "void"
)

var activeStatuses = map[string]any{"active": 1, "inactive": 0}

// Entities returns fresh declarations for every bundled entity
func Entities() []registry.Entity {
	return []registry.Entity{
		{
			Name:          Department,
			Table:         "departments",
			NameColumn:    "name",
			CreatedColumn: "created_at",
			StatusColumn:  "status",
			Statuses:      activeStatuses,
			ActiveValue:   1,
			Relations: map[string]registry.Relation{
				"users": {Kind: registry.HasMany, Target: User, ForeignKey: "department_id"},
			},
		},
		{
			Name:          User,
			Table:         "users",
			NameColumn:    "name",
			Foreign:       []string{"department_id"},
			CreatedColumn: "created_at",
			StatusColumn:  "status",
			Statuses:      activeStatuses,
			ActiveValue:   1,
			Relations: map[string]registry.Relation{
				"department": {Kind: registry.BelongsTo, Target: Department, ForeignKey: "department_id"},
				"documents":  {Kind: registry.HasMany, Target: Document, ForeignKey: "owner_id"},
				"invoices":   {Kind: registry.HasMany, Target: Invoice, ForeignKey: "customer_id"},
			},
		},
		{
			Name:          Document,
			Table:         "documents",
			NameColumn:    "title",
			Foreign:       []string{"owner_id"},
			CreatedColumn: "created_at",
			StatusColumn:  "status",
			Statuses:      activeStatuses,
			Relations: map[string]registry.Relation{
				"owner": {Kind: registry.BelongsTo, Target: User, ForeignKey: "owner_id"},
			},
		},
		{
			Name:          Invoice,
			Table:         "invoices",
			NameColumn:    "number",
			Foreign:       []string{"customer_id"},
			CreatedColumn: "created_at",
			StatusColumn:  "status",
			Includes:      []string{"customer"},
			Relations: map[string]registry.Relation{
				"customer": {Kind: registry.BelongsTo, Target: User, ForeignKey: "customer_id"},
			},
		},
	}
}

// Registry builds the registry of bundled entities
func Registry() (*registry.Registry, error) {
	return registry.New(Entities()...)
}

// Scopes returns the named operations callable through FilterSet.Perform
func Scopes() query.Scopes {
	return query.Scopes{
		Invoice: {
			"unpaid": unpaid,
			"above":  above,
		},
		User: {
			"named": contains("name"),
		},
		Document: {
			"titled": contains("title"),
		},
	}
}

// unpaid keeps invoices that are neither paid nor void
func unpaid(q query.Queryable, _ ...any) (query.Queryable, error) {
	return q.Where("status", query.OpNe, InvoicePaid).Where("status", query.OpNe, InvoiceVoid), nil
}

// above keeps invoices whose amount exceeds the single numeric argument
func above(q query.Queryable, args ...any) (query.Queryable, error) {
	if len(args) != 1 {
		return nil, apperrors.Newf(apperrors.ErrTypeValidation, "above expects one argument, got %d", len(args))
	}

	switch v := schema.Coerce(schema.TypeFloat, args[0]).(type) {
	case float64:
		return q.Where("amount", query.OpGt, v), nil
	case int:
		return q.Where("amount", query.OpGt, float64(v)), nil
	case int64:
		return q.Where("amount", query.OpGt, float64(v)), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrTypeValidation, "above expects a number, got %v", args[0])
	}
}

// contains keeps rows whose column contains the single argument, case-insensitively
func contains(column string) query.Scope {
	return func(q query.Queryable, args ...any) (query.Queryable, error) {
		if len(args) != 1 {
			return nil, apperrors.Newf(apperrors.ErrTypeValidation, "expected one argument, got %d", len(args))
		}

		return q.Where(column, query.OpILike, fmt.Sprintf("%%%v%%", args[0])), nil
	}
}
