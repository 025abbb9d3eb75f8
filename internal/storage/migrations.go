package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kyleking/lyre/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles database schema migrations
type MigrationManager struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sqlx.DB, logger *logging.Logger) *MigrationManager {
	return &MigrationManager{db: db, logger: logger}
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Departments and users",
			Up: `
				CREATE SEQUENCE IF NOT EXISTS seq_departments START 1;
				CREATE SEQUENCE IF NOT EXISTS seq_users START 1;

				CREATE TABLE IF NOT EXISTS departments (
					id INTEGER PRIMARY KEY DEFAULT nextval('seq_departments'),
					name VARCHAR NOT NULL,
					status INTEGER NOT NULL DEFAULT 1,
					created_at TIMESTAMP DEFAULT current_timestamp
				);

				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY DEFAULT nextval('seq_users'),
					name VARCHAR NOT NULL,
					email VARCHAR,
					department_id INTEGER,
					status INTEGER NOT NULL DEFAULT 1,
					created_at TIMESTAMP DEFAULT current_timestamp
				);

				CREATE INDEX IF NOT EXISTS idx_users_department_id ON users(department_id);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_users_department_id;
				DROP TABLE IF EXISTS users;
				DROP TABLE IF EXISTS departments;
				DROP SEQUENCE IF EXISTS seq_users;
				DROP SEQUENCE IF EXISTS seq_departments;
			`,
		},
		{
			Version:     2,
			Description: "Documents and invoices",
			Up: `
				CREATE SEQUENCE IF NOT EXISTS seq_documents START 1;
				CREATE SEQUENCE IF NOT EXISTS seq_invoices START 1;

				CREATE TABLE IF NOT EXISTS documents (
					id INTEGER PRIMARY KEY DEFAULT nextval('seq_documents'),
					title VARCHAR NOT NULL,
					body TEXT,
					owner_id INTEGER,
					status INTEGER NOT NULL DEFAULT 1,
					created_at TIMESTAMP DEFAULT current_timestamp
				);

				CREATE TABLE IF NOT EXISTS invoices (
					id INTEGER PRIMARY KEY DEFAULT nextval('seq_invoices'),
					number VARCHAR NOT NULL,
					customer_id INTEGER,
					amount DOUBLE NOT NULL DEFAULT 0,
					status VARCHAR NOT NULL DEFAULT 'draft',
					issued_on DATE,
					created_at TIMESTAMP DEFAULT current_timestamp
				);

				CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id);
				CREATE INDEX IF NOT EXISTS idx_invoices_customer_id ON invoices(customer_id);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_invoices_customer_id;
				DROP INDEX IF EXISTS idx_documents_owner_id;
				DROP TABLE IF EXISTS invoices;
				DROP TABLE IF EXISTS documents;
				DROP SEQUENCE IF EXISTS seq_invoices;
				DROP SEQUENCE IF EXISTS seq_documents;
			`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	if err := m.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	return versions, nil
}

// IsMigrationApplied checks if a specific migration version has been applied
func (m *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	if err := m.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version); err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	return count > 0, nil
}

// ApplyMigration applies a single migration inside a transaction
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if applied {
		return fmt.Errorf("migration %d already applied", migration.Version)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration rolls back a single migration
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("migration %d not applied", migration.Version)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	appliedMap := make(map[int]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		appliedMap[version] = true
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if appliedMap[migration.Version] {
			continue
		}

		m.logger.WithField("version", migration.Version).Infof("applying migration: %s", migration.Description)

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations above targetVersion, newest first
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrationMap := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		migrationMap[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := migrationMap[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		m.logger.WithField("version", version).Infof("rolling back migration: %s", migration.Description)

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int        `json:"version"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

type appliedRow struct {
	Version   int       `db:"version"`
	AppliedAt time.Time `db:"applied_at"`
}

// GetMigrationStatus returns every known migration with its applied state, ordered by version
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	var rows []appliedRow
	if err := m.db.SelectContext(ctx, &rows, "SELECT version, applied_at FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	appliedAt := make(map[int]time.Time, len(rows))
	for _, r := range rows {
		appliedAt[r.Version] = r.AppliedAt
	}

	migrations := m.GetMigrations()
	status := make([]MigrationStatus, 0, len(migrations))

	for _, migration := range migrations {
		s := MigrationStatus{Version: migration.Version, Description: migration.Description}
		if at, ok := appliedAt[migration.Version]; ok {
			s.Applied = true
			s.AppliedAt = &at
		}

		status = append(status, s)
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Version < status[j].Version })

	return status, nil
}
