package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/persistence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

type seriesRepositoryAdapter struct {
	repo persistence.SeriesRepository
}

func newSeriesRepositoryAdapter(repo persistence.SeriesRepository) *seriesRepositoryAdapter {
	return &seriesRepositoryAdapter{repo: repo}
}

func (a *seriesRepositoryAdapter) CreateSeries(ctx context.Context, series application.Series) error {
	return a.repo.CreateSeries(ctx, toPersistenceSeries(series))
}

func (a *seriesRepositoryAdapter) UpdateSeries(ctx context.Context, series application.Series) error {
	return a.repo.UpdateSeries(ctx, toPersistenceSeries(series))
}

func (a *seriesRepositoryAdapter) GetSeries(ctx context.Context, id string) (application.Series, error) {
	model, err := a.repo.GetSeries(ctx, id)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(model)
}

func (a *seriesRepositoryAdapter) ListActiveSeries(ctx context.Context) ([]application.Series, error) {
	models, err := a.repo.ListActiveSeries(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]application.Series, 0, len(models))
	for _, model := range models {
		series, err := toApplicationSeries(model)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	return result, nil
}

func (a *seriesRepositoryAdapter) AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error {
	return a.repo.AdvanceWatermark(ctx, id, until, updatedAt)
}

func (a *seriesRepositoryAdapter) AddExclusion(ctx context.Context, seriesID string, startAt, createdAt time.Time) error {
	return a.repo.AddExclusion(ctx, persistence.SeriesExclusion{
		SeriesID:  seriesID,
		StartAt:   startAt,
		CreatedAt: createdAt,
	})
}

func (a *seriesRepositoryAdapter) ListExclusions(ctx context.Context, seriesID string) ([]time.Time, error) {
	exclusions, err := a.repo.ListExclusions(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	result := make([]time.Time, 0, len(exclusions))
	for _, exclusion := range exclusions {
		result = append(result, exclusion.StartAt)
	}
	return result, nil
}

type occurrenceRepositoryAdapter struct {
	repo persistence.OccurrenceRepository
}

func newOccurrenceRepositoryAdapter(repo persistence.OccurrenceRepository) *occurrenceRepositoryAdapter {
	return &occurrenceRepositoryAdapter{repo: repo}
}

func (a *occurrenceRepositoryAdapter) InsertOccurrence(ctx context.Context, occurrence application.Occurrence) (bool, error) {
	return a.repo.InsertOccurrence(ctx, toPersistenceOccurrence(occurrence))
}

func (a *occurrenceRepositoryAdapter) UpdateOccurrence(ctx context.Context, occurrence application.Occurrence) error {
	return a.repo.UpdateOccurrence(ctx, toPersistenceOccurrence(occurrence))
}

func (a *occurrenceRepositoryAdapter) GetOccurrence(ctx context.Context, id string) (application.Occurrence, error) {
	model, err := a.repo.GetOccurrence(ctx, id)
	if err != nil {
		return application.Occurrence{}, err
	}
	return toApplicationOccurrence(model), nil
}

func (a *occurrenceRepositoryAdapter) ListOccurrences(ctx context.Context, filter application.OccurrenceFilter) ([]application.Occurrence, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	models, err := a.repo.ListOccurrences(ctx, persistence.OccurrenceFilter{
		SeriesID:     filter.SeriesID,
		StaffID:      filter.StaffID,
		Statuses:     statuses,
		StartsFrom:   cloneTime(filter.StartsFrom),
		StartsBefore: cloneTime(filter.StartsBefore),
		EndsAfter:    cloneTime(filter.EndsAfter),
	})
	if err != nil {
		return nil, err
	}
	return toApplicationOccurrences(models), nil
}

func (a *occurrenceRepositoryAdapter) CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error) {
	return a.repo.CountSeriesOccurrences(ctx, seriesID)
}

func (a *occurrenceRepositoryAdapter) DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]application.Occurrence, error) {
	models, err := a.repo.DeleteScheduledFrom(ctx, seriesID, from)
	if err != nil {
		return nil, err
	}
	return toApplicationOccurrences(models), nil
}

func (a *occurrenceRepositoryAdapter) CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]application.Occurrence, error) {
	models, err := a.repo.CancelScheduledAfter(ctx, seriesID, after, updatedAt)
	if err != nil {
		return nil, err
	}
	return toApplicationOccurrences(models), nil
}

// toApplicationSeries fails only when a stored row holds a malformed date or
// clock, which the schema CHECK constraints should already prevent.
func toApplicationSeries(model persistence.Series) (application.Series, error) {
	startDate, err := timeconv.ParseDate(model.StartDate)
	if err != nil {
		return application.Series{}, fmt.Errorf("series %s: start_date: %w", model.ID, err)
	}
	startTime, err := timeconv.ParseClock(model.LocalStartTime)
	if err != nil {
		return application.Series{}, fmt.Errorf("series %s: local_start_time: %w", model.ID, err)
	}
	var until *timeconv.Date
	if model.UntilDate != nil {
		d, err := timeconv.ParseDate(*model.UntilDate)
		if err != nil {
			return application.Series{}, fmt.Errorf("series %s: until_date: %w", model.ID, err)
		}
		until = &d
	}
	return application.Series{
		ID:                 model.ID,
		TenantID:           model.TenantID,
		ClientID:           model.ClientID,
		StaffID:            model.StaffID,
		ServiceID:          model.ServiceID,
		StartDate:          startDate,
		LocalStartTime:     startTime,
		Timezone:           model.Timezone,
		DurationMinutes:    model.DurationMinutes,
		RRule:              model.RRule,
		UntilDate:          until,
		MaxOccurrences:     cloneInt(model.MaxOccurrences),
		Active:             model.Active,
		LastGeneratedUntil: cloneTime(model.LastGeneratedUntil),
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}, nil
}

func toPersistenceSeries(series application.Series) persistence.Series {
	var until *string
	if series.UntilDate != nil {
		text := series.UntilDate.String()
		until = &text
	}
	return persistence.Series{
		ID:                 series.ID,
		TenantID:           series.TenantID,
		ClientID:           series.ClientID,
		StaffID:            series.StaffID,
		ServiceID:          series.ServiceID,
		StartDate:          series.StartDate.String(),
		LocalStartTime:     series.LocalStartTime.String(),
		Timezone:           series.Timezone,
		DurationMinutes:    series.DurationMinutes,
		RRule:              series.RRule,
		UntilDate:          until,
		MaxOccurrences:     cloneInt(series.MaxOccurrences),
		Active:             series.Active,
		LastGeneratedUntil: cloneTime(series.LastGeneratedUntil),
		CreatedAt:          series.CreatedAt,
		UpdatedAt:          series.UpdatedAt,
	}
}

func toApplicationOccurrence(model persistence.Occurrence) application.Occurrence {
	return application.Occurrence{
		ID:          model.ID,
		TenantID:    model.TenantID,
		SeriesID:    cloneString(model.SeriesID),
		ClientID:    model.ClientID,
		StaffID:     model.StaffID,
		ServiceID:   model.ServiceID,
		StartAt:     model.StartAt,
		EndAt:       model.EndAt,
		Status:      application.OccurrenceStatus(model.Status),
		Title:       cloneString(model.Title),
		Description: cloneString(model.Description),
		CostCents:   cloneInt64(model.CostCents),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationOccurrences(models []persistence.Occurrence) []application.Occurrence {
	result := make([]application.Occurrence, 0, len(models))
	for _, model := range models {
		result = append(result, toApplicationOccurrence(model))
	}
	return result
}

func toPersistenceOccurrence(occurrence application.Occurrence) persistence.Occurrence {
	return persistence.Occurrence{
		ID:          occurrence.ID,
		TenantID:    occurrence.TenantID,
		SeriesID:    cloneString(occurrence.SeriesID),
		ClientID:    occurrence.ClientID,
		StaffID:     occurrence.StaffID,
		ServiceID:   occurrence.ServiceID,
		StartAt:     occurrence.StartAt,
		EndAt:       occurrence.EndAt,
		Status:      string(occurrence.Status),
		Title:       cloneString(occurrence.Title),
		Description: cloneString(occurrence.Description),
		CostCents:   cloneInt64(occurrence.CostCents),
		CreatedAt:   occurrence.CreatedAt,
		UpdatedAt:   occurrence.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
