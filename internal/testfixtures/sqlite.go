package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/clinic-scheduler/internal/persistence"
	"github.com/example/clinic-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Storage     *sqlite.Storage
	Series      persistence.SeriesRepository
	Occurrences persistence.OccurrenceRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "scheduler.db")

	storage, err := sqlite.Open(sqlite.TestConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background(), nil); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:     storage,
		Series:      storage.Series,
		Occurrences: storage.Occurrences,
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedSeries stores the fixtures and fails the test on error.
func (h *SQLiteHarness) SeedSeries(tb testing.TB, fixtures ...SeriesFixture) {
	tb.Helper()
	for _, fixture := range fixtures {
		if err := h.Series.CreateSeries(context.Background(), fixture.Persistence()); err != nil {
			tb.Fatalf("failed to seed series %s: %v", fixture.ID, err)
		}
	}
}

// SeedOccurrences stores the fixtures and fails the test on error or when an
// occurrence collides with an existing one.
func (h *SQLiteHarness) SeedOccurrences(tb testing.TB, fixtures ...OccurrenceFixture) {
	tb.Helper()
	for _, fixture := range fixtures {
		inserted, err := h.Occurrences.InsertOccurrence(context.Background(), fixture.Persistence())
		if err != nil {
			tb.Fatalf("failed to seed occurrence %s: %v", fixture.ID, err)
		}
		if !inserted {
			tb.Fatalf("occurrence %s collided with an existing one", fixture.ID)
		}
	}
}
