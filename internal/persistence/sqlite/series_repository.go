package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/clinic-scheduler/internal/persistence"
)

const seriesColumns = `id, tenant_id, client_id, staff_id, service_id, start_date, local_start_time, timezone,
	duration_minutes, rrule, until_date, max_occurrences, active, last_generated_until, created_at, updated_at`

var _ persistence.SeriesRepository = (*SeriesRepository)(nil)

// SeriesRepository implements persistence.SeriesRepository using SQLite.
type SeriesRepository struct {
	pool  *ConnectionPool
	retry RetryConfig
}

// NewSeriesRepository creates a SQLite series repository.
func NewSeriesRepository(pool *ConnectionPool) *SeriesRepository {
	return &SeriesRepository{pool: pool, retry: DefaultRetryConfig()}
}

// CreateSeries inserts a new series.
func (r *SeriesRepository) CreateSeries(ctx context.Context, series persistence.Series) error {
	if series.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO series (`+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		series.ID,
		series.TenantID,
		series.ClientID,
		series.StaffID,
		series.ServiceID,
		series.StartDate,
		series.LocalStartTime,
		series.Timezone,
		series.DurationMinutes,
		series.RRule,
		nullString(series.UntilDate),
		nullInt(series.MaxOccurrences),
		series.Active,
		nullTime(series.LastGeneratedUntil),
		formatTime(series.CreatedAt),
		formatTime(series.UpdatedAt),
	)
	return mapError(err)
}

// UpdateSeries overwrites the definition of an existing series. The
// generation watermark is only changed through AdvanceWatermark.
func (r *SeriesRepository) UpdateSeries(ctx context.Context, series persistence.Series) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE series
		SET client_id = ?, staff_id = ?, service_id = ?, start_date = ?, local_start_time = ?, timezone = ?,
			duration_minutes = ?, rrule = ?, until_date = ?, max_occurrences = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		series.ClientID,
		series.StaffID,
		series.ServiceID,
		series.StartDate,
		series.LocalStartTime,
		series.Timezone,
		series.DurationMinutes,
		series.RRule,
		nullString(series.UntilDate),
		nullInt(series.MaxOccurrences),
		series.Active,
		formatTime(series.UpdatedAt),
		series.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// GetSeries loads a series by ID.
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	if id == "" {
		return persistence.Series{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if err != nil {
		return persistence.Series{}, err
	}
	return series, nil
}

// ListActiveSeries returns active series ordered by creation time.
func (r *SeriesRepository) ListActiveSeries(ctx context.Context) ([]persistence.Series, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+seriesColumns+`
		FROM series
		WHERE active = 1
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// AdvanceWatermark moves last_generated_until forward to until.
func (r *SeriesRepository) AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error {
	return withRetry(ctx, r.retry, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `
			UPDATE series
			SET last_generated_until = ?, updated_at = ?
			WHERE id = ? AND (last_generated_until IS NULL OR last_generated_until < ?)`,
			formatTime(until), formatTime(updatedAt), id, formatTime(until),
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}
		// Either the watermark is already ahead or the series does not exist.
		var exists int
		err = r.pool.DB().QueryRowContext(ctx, `SELECT 1 FROM series WHERE id = ?`, id).Scan(&exists)
		return mapError(err)
	})
}

// AddExclusion records an excluded instant. Re-adding it is a no-op.
func (r *SeriesRepository) AddExclusion(ctx context.Context, exclusion persistence.SeriesExclusion) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO series_exclusions (series_id, start_at, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (series_id, start_at) DO NOTHING`,
		exclusion.SeriesID, formatTime(exclusion.StartAt), formatTime(exclusion.CreatedAt),
	)
	return mapError(err)
}

// ListExclusions returns the exclusions of a series in start order.
func (r *SeriesRepository) ListExclusions(ctx context.Context, seriesID string) ([]persistence.SeriesExclusion, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT series_id, start_at, created_at
		FROM series_exclusions
		WHERE series_id = ?
		ORDER BY start_at ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.SeriesExclusion
	for rows.Next() {
		var (
			exclusion          persistence.SeriesExclusion
			startAt, createdAt string
		)
		if err := rows.Scan(&exclusion.SeriesID, &startAt, &createdAt); err != nil {
			return nil, mapError(err)
		}
		if exclusion.StartAt, err = parseTime("start_at", startAt); err != nil {
			return nil, err
		}
		if exclusion.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, exclusion)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (persistence.Series, error) {
	var (
		series               persistence.Series
		untilDate, watermark sql.NullString
		maxOccurrences       sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&series.ID,
		&series.TenantID,
		&series.ClientID,
		&series.StaffID,
		&series.ServiceID,
		&series.StartDate,
		&series.LocalStartTime,
		&series.Timezone,
		&series.DurationMinutes,
		&series.RRule,
		&untilDate,
		&maxOccurrences,
		&series.Active,
		&watermark,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Series{}, persistence.ErrNotFound
		}
		return persistence.Series{}, mapError(err)
	}

	if untilDate.Valid {
		series.UntilDate = &untilDate.String
	}
	if maxOccurrences.Valid {
		n := int(maxOccurrences.Int64)
		series.MaxOccurrences = &n
	}
	if watermark.Valid {
		t, err := parseTime("last_generated_until", watermark.String)
		if err != nil {
			return persistence.Series{}, err
		}
		series.LastGeneratedUntil = &t
	}
	if series.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Series{}, err
	}
	if series.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Series{}, err
	}
	return series, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*value), Valid: true}
}
