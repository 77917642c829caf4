package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/persistence"
)

const occurrenceColumns = `id, tenant_id, series_id, client_id, staff_id, service_id, start_at, end_at,
	status, title, description, cost_cents, created_at, updated_at`

var _ persistence.OccurrenceRepository = (*OccurrenceRepository)(nil)

// OccurrenceRepository implements persistence.OccurrenceRepository using SQLite.
type OccurrenceRepository struct {
	pool  *ConnectionPool
	retry RetryConfig
}

// NewOccurrenceRepository creates a SQLite occurrence repository.
func NewOccurrenceRepository(pool *ConnectionPool) *OccurrenceRepository {
	return &OccurrenceRepository{pool: pool, retry: DefaultRetryConfig()}
}

// InsertOccurrence inserts the occurrence unless its series already has one
// at the same start instant.
func (r *OccurrenceRepository) InsertOccurrence(ctx context.Context, occurrence persistence.Occurrence) (bool, error) {
	if occurrence.ID == "" {
		return false, persistence.ErrConstraintViolation
	}
	status := occurrence.Status
	if status == "" {
		status = persistence.StatusScheduled
	}

	var inserted bool
	err := withRetry(ctx, r.retry, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `
			INSERT INTO occurrences (`+occurrenceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (series_id, start_at) DO NOTHING`,
			occurrence.ID,
			occurrence.TenantID,
			nullString(occurrence.SeriesID),
			occurrence.ClientID,
			occurrence.StaffID,
			occurrence.ServiceID,
			formatTime(occurrence.StartAt),
			formatTime(occurrence.EndAt),
			status,
			nullString(occurrence.Title),
			nullString(occurrence.Description),
			nullInt64(occurrence.CostCents),
			formatTime(occurrence.CreatedAt),
			formatTime(occurrence.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpdateOccurrence overwrites a stored occurrence.
func (r *OccurrenceRepository) UpdateOccurrence(ctx context.Context, occurrence persistence.Occurrence) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE occurrences
		SET series_id = ?, client_id = ?, staff_id = ?, service_id = ?, start_at = ?, end_at = ?,
			status = ?, title = ?, description = ?, cost_cents = ?, updated_at = ?
		WHERE id = ?`,
		nullString(occurrence.SeriesID),
		occurrence.ClientID,
		occurrence.StaffID,
		occurrence.ServiceID,
		formatTime(occurrence.StartAt),
		formatTime(occurrence.EndAt),
		occurrence.Status,
		nullString(occurrence.Title),
		nullString(occurrence.Description),
		nullInt64(occurrence.CostCents),
		formatTime(occurrence.UpdatedAt),
		occurrence.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// GetOccurrence loads an occurrence by ID.
func (r *OccurrenceRepository) GetOccurrence(ctx context.Context, id string) (persistence.Occurrence, error) {
	if id == "" {
		return persistence.Occurrence{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ?`, id)
	return scanOccurrence(row)
}

// ListOccurrences returns occurrences matching filter ordered by start.
func (r *OccurrenceRepository) ListOccurrences(ctx context.Context, filter persistence.OccurrenceFilter) ([]persistence.Occurrence, error) {
	query, args := buildOccurrenceQuery(filter)
	return listOccurrences(ctx, r.pool.DB(), query, args...)
}

// CountSeriesOccurrences counts every occurrence ever generated for the
// series that is still stored, whatever its status.
func (r *OccurrenceRepository) CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM occurrences WHERE series_id = ?`, seriesID).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// DeleteScheduledFrom removes scheduled occurrences of the series that start
// at or after from.
func (r *OccurrenceRepository) DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]persistence.Occurrence, error) {
	var deleted []persistence.Occurrence
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		found, err := listOccurrences(ctx, tx, `
			SELECT `+occurrenceColumns+`
			FROM occurrences
			WHERE series_id = ? AND status = ? AND start_at >= ?
			ORDER BY start_at ASC`,
			seriesID, persistence.StatusScheduled, formatTime(from))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM occurrences
			WHERE series_id = ? AND status = ? AND start_at >= ?`,
			seriesID, persistence.StatusScheduled, formatTime(from)); err != nil {
			return mapError(err)
		}
		deleted = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// CancelScheduledAfter marks scheduled occurrences of the series starting
// strictly after the given instant as cancelled.
func (r *OccurrenceRepository) CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]persistence.Occurrence, error) {
	var cancelled []persistence.Occurrence
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		found, err := listOccurrences(ctx, tx, `
			SELECT `+occurrenceColumns+`
			FROM occurrences
			WHERE series_id = ? AND status = ? AND start_at > ?
			ORDER BY start_at ASC`,
			seriesID, persistence.StatusScheduled, formatTime(after))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE occurrences
			SET status = ?, updated_at = ?
			WHERE series_id = ? AND status = ? AND start_at > ?`,
			persistence.StatusCancelled, formatTime(updatedAt),
			seriesID, persistence.StatusScheduled, formatTime(after)); err != nil {
			return mapError(err)
		}
		for i := range found {
			found[i].Status = persistence.StatusCancelled
			found[i].UpdatedAt = updatedAt.UTC()
		}
		cancelled = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func buildOccurrenceQuery(filter persistence.OccurrenceFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.SeriesID != "" {
		conditions = append(conditions, "series_id = ?")
		args = append(args, filter.SeriesID)
	}
	if filter.StaffID != "" {
		conditions = append(conditions, "staff_id = ?")
		args = append(args, filter.StaffID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",")
		conditions = append(conditions, "status IN ("+placeholders+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.StartsFrom != nil {
		conditions = append(conditions, "start_at >= ?")
		args = append(args, formatTime(*filter.StartsFrom))
	}
	if filter.StartsBefore != nil {
		conditions = append(conditions, "start_at < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if filter.EndsAfter != nil {
		conditions = append(conditions, "end_at > ?")
		args = append(args, formatTime(*filter.EndsAfter))
	}

	query := `SELECT ` + occurrenceColumns + ` FROM occurrences`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_at ASC, id ASC"
	return query, args
}

func listOccurrences(ctx context.Context, q querier, query string, args ...any) ([]persistence.Occurrence, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.Occurrence
	for rows.Next() {
		occurrence, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, occurrence)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func scanOccurrence(row rowScanner) (persistence.Occurrence, error) {
	var (
		occurrence                           persistence.Occurrence
		seriesID, title, description         sql.NullString
		costCents                            sql.NullInt64
		startAt, endAt, createdAt, updatedAt string
	)
	err := row.Scan(
		&occurrence.ID,
		&occurrence.TenantID,
		&seriesID,
		&occurrence.ClientID,
		&occurrence.StaffID,
		&occurrence.ServiceID,
		&startAt,
		&endAt,
		&occurrence.Status,
		&title,
		&description,
		&costCents,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Occurrence{}, persistence.ErrNotFound
		}
		return persistence.Occurrence{}, mapError(err)
	}

	if seriesID.Valid {
		occurrence.SeriesID = &seriesID.String
	}
	if title.Valid {
		occurrence.Title = &title.String
	}
	if description.Valid {
		occurrence.Description = &description.String
	}
	if costCents.Valid {
		occurrence.CostCents = &costCents.Int64
	}
	if occurrence.StartAt, err = parseTime("start_at", startAt); err != nil {
		return persistence.Occurrence{}, err
	}
	if occurrence.EndAt, err = parseTime("end_at", endAt); err != nil {
		return persistence.Occurrence{}, err
	}
	if occurrence.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Occurrence{}, err
	}
	if occurrence.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Occurrence{}, err
	}
	return occurrence, nil
}
