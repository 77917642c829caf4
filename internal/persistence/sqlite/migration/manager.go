package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager wires a Manager for db. A nil logger discards output.
func NewManager(db *sql.DB, scanner *Scanner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		scanner:  scanner,
		executor: NewExecutor(db),
		logger:   logger.With(slog.String("component", "migration")),
	}
}

// Run applies every pending migration. It stops at the first failure; the
// failed migration is rolled back and earlier ones stay applied.
func (m *Manager) Run(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)
	for _, pending := range status.Pending {
		if err := m.executor.Apply(ctx, pending); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", pending.Version, "path", pending.Path, "error", err)
			return err
		}
		m.logger.InfoContext(ctx, "migration applied", "version", pending.Version, "description", pending.Description)
	}
	return nil
}

// Status compares the available migrations with schema_migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}
	if err := validateSequence(available, applied); err != nil {
		return Status{}, err
	}

	done := make(map[int]AppliedMigration, len(applied))
	for _, row := range applied {
		done[versionNumber(row.Version)] = row
	}

	status := Status{Applied: applied}
	for _, migration := range available {
		row, ok := done[versionNumber(migration.Version)]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if row.Checksum != "" && row.Checksum != migration.Checksum {
			return Status{}, newMigrationError(migration, "verify checksum", ErrChecksumMismatch)
		}
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	known := make(map[int]bool, len(available))
	for i, migration := range available {
		n := versionNumber(migration.Version)
		known[n] = true
		if i > 0 && n != versionNumber(available[i-1].Version)+1 {
			return fmt.Errorf("%w: missing migration version %03d", ErrVersionConflict, versionNumber(available[i-1].Version)+1)
		}
	}
	for _, row := range applied {
		n, err := strconv.Atoi(row.Version)
		if err != nil || !known[n] {
			return fmt.Errorf("%w: applied migration %s has no migration file", ErrVersionConflict, row.Version)
		}
	}
	return nil
}
