// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second
)

// Row counts written by catalog.Seed
const (
	SeededDepartments = 2
	SeededUsers       = 4
	// SeededActiveUsers excludes the one inactive user
	SeededActiveUsers = 3
	SeededDocuments   = 4
	SeededInvoices    = 5
)

// Seeded names used across scenario tests
const (
	UserAda   = "Ada Lovelace"
	UserGrace = "Grace Hopper"
	UserBob   = "Bob Ledger"
	UserOld   = "Old Timer"
)
