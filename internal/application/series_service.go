package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/logging"
	"github.com/example/clinic-scheduler/internal/recurrence"
	"github.com/example/clinic-scheduler/internal/scheduler"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

// SeriesService orchestrates validation, persistence, and regeneration for series.
type SeriesService struct {
	series      SeriesRepository
	occurrences OccurrenceRepository
	generator   *GenerationService
	cascade     *DeactivationCascade
	publisher   SyncPublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSeriesService constructs a series service with the provided dependencies.
func NewSeriesService(series SeriesRepository, occurrences OccurrenceRepository, generator *GenerationService, publisher SyncPublisher, idGenerator func() string, now func() time.Time) *SeriesService {
	return NewSeriesServiceWithLogger(series, occurrences, generator, publisher, idGenerator, now, nil)
}

// NewSeriesServiceWithLogger constructs a series service with a specified logger.
func NewSeriesServiceWithLogger(series SeriesRepository, occurrences OccurrenceRepository, generator *GenerationService, publisher SyncPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SeriesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	logger = logging.OrDefault(logger)
	if generator == nil {
		generator = NewGenerationServiceWithLogger(series, occurrences, nil, publisher, GenerationSettings{}, idGenerator, now, logger)
	}
	return &SeriesService{
		series:      series,
		occurrences: occurrences,
		generator:   generator,
		cascade:     NewDeactivationCascade(occurrences, publisher, now, logger),
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

func (s *SeriesService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Service(ctx, s.logger, "SeriesService", operation, attrs...)
}

// CreateSeries validates the definition, stores it, and generates its first
// occurrences. When generation fails the stored series is still returned
// together with the error.
func (s *SeriesService) CreateSeries(ctx context.Context, input SeriesInput) (result CreateSeriesResult, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSeries", "tenant_id", input.TenantID, "staff_id", input.StaffID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("series_id", result.Series.ID).InfoContext(ctx, "series created",
			"created", result.Generation.Created,
		)
	}()

	var series Series
	series, err = s.buildSeries(input)
	if err != nil {
		return
	}

	if err = s.series.CreateSeries(ctx, series); err != nil {
		err = mapRepoError(err)
		return
	}
	result.Series = series

	var generation GenerationResult
	generation, err = s.generator.Generate(ctx, GenerateParams{SeriesID: series.ID, MonthsAhead: input.MonthsAhead})
	result.Generation = generation
	if generation.LastGeneratedUntil != nil {
		result.Series.LastGeneratedUntil = generation.LastGeneratedUntil
	}
	return
}

// GetSeries loads a series by ID.
func (s *SeriesService) GetSeries(ctx context.Context, id string) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("SeriesService is nil")
	}
	series, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return Series{}, mapRepoError(err)
	}
	return series, nil
}

// Generate materializes occurrences of a series on request.
func (s *SeriesService) Generate(ctx context.Context, params GenerateParams) (GenerationResult, error) {
	if s == nil {
		return GenerationResult{}, fmt.Errorf("SeriesService is nil")
	}
	return s.generator.Generate(ctx, params)
}

// UpdateSeries applies an edit and carries out the regeneration it implies.
func (s *SeriesService) UpdateSeries(ctx context.Context, params UpdateSeriesParams) (result UpdateSeriesResult, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSeries",
		"series_id", params.SeriesID,
		"scope", string(params.Scope),
		"occurrence_id", params.OccurrenceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "series updated", "removed", result.Removed, "warnings", len(result.Warnings))
	}()

	var stored Series
	stored, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	var target *Occurrence
	if params.OccurrenceID != "" {
		var occurrence Occurrence
		occurrence, err = s.occurrences.GetOccurrence(ctx, params.OccurrenceID)
		if err != nil {
			err = mapRepoError(err)
			return
		}
		target = &occurrence
	}

	proposed, instruction, detectErr := DetectReschedule(stored, params.Edit, params.Scope, target, s.generator.Policy())
	if detectErr != nil {
		err = detectErr
		return
	}

	now := s.now().UTC()
	if instruction == nil {
		proposed.UpdatedAt = now
		if err = s.series.UpdateSeries(ctx, proposed); err != nil {
			err = mapRepoError(err)
			return
		}
		result.Series = proposed
		return
	}

	logger.DebugContext(ctx, "scheduling fields changed", "changes", strings.Join(instruction.Changes, ","))

	switch instruction.Scope {
	case ScopeThisOnly:
		result, err = s.detach(ctx, stored, *target, instruction, now)
	default:
		result, err = s.replaceScheduled(ctx, proposed, instruction, now)
	}
	return
}

// detach moves one occurrence out of its series. The original instant is
// excluded first so no later run re-creates it.
func (s *SeriesService) detach(ctx context.Context, series Series, occurrence Occurrence, instruction *RegenerationInstruction, now time.Time) (UpdateSeriesResult, error) {
	if err := s.series.AddExclusion(ctx, series.ID, instruction.OriginalStart, now); err != nil {
		return UpdateSeriesResult{}, mapRepoError(err)
	}

	occurrence.SeriesID = nil
	occurrence.StartAt = instruction.MoveTo.Start
	occurrence.EndAt = instruction.MoveTo.End
	occurrence.UpdatedAt = now
	if err := s.occurrences.UpdateOccurrence(ctx, occurrence); err != nil {
		return UpdateSeriesResult{}, mapRepoError(err)
	}
	publish(ctx, s.publisher, eventFor(EventUpdated, occurrence, series.ID))

	warnings, err := s.detectConflicts(ctx, occurrence)
	if err != nil {
		return UpdateSeriesResult{}, err
	}
	return UpdateSeriesResult{Series: series, Occurrence: &occurrence, Warnings: warnings}, nil
}

// replaceScheduled stores the edited definition, deletes the scheduled
// occurrences the scope covers, and regenerates them. An inactive series only
// has its definition stored; its remaining occurrences stay untouched until
// reactivation generates from the new definition.
func (s *SeriesService) replaceScheduled(ctx context.Context, series Series, instruction *RegenerationInstruction, now time.Time) (UpdateSeriesResult, error) {
	series.UpdatedAt = now
	if err := s.series.UpdateSeries(ctx, series); err != nil {
		return UpdateSeriesResult{}, mapRepoError(err)
	}
	if !series.Active {
		return UpdateSeriesResult{Series: series}, nil
	}

	var from time.Time
	if instruction.Scope == ScopeThisAndFuture {
		from = instruction.SplitAt
	}
	deleted, err := s.occurrences.DeleteScheduledFrom(ctx, series.ID, from)
	if err != nil {
		return UpdateSeriesResult{}, mapRepoError(err)
	}
	for _, occurrence := range deleted {
		publish(ctx, s.publisher, eventFor(EventDeleted, occurrence, series.ID))
	}

	if instruction.Scope == ScopeEntireSeries {
		from = regenerationStart(instruction.Anchor, deleted, now)
	}

	result := UpdateSeriesResult{Series: series, Removed: len(deleted)}
	generation, err := s.generator.Regenerate(ctx, RegenerateParams{SeriesID: series.ID, From: from})
	result.Regenerated = &generation
	if generation.LastGeneratedUntil != nil {
		result.Series.LastGeneratedUntil = generation.LastGeneratedUntil
	}
	return result, err
}

// regenerationStart is the later of the anchor and the earliest deleted
// instant, or of the anchor and now when nothing was deleted.
func regenerationStart(anchor time.Time, deleted []Occurrence, now time.Time) time.Time {
	floor := now
	if len(deleted) > 0 {
		floor = deleted[0].StartAt
		for _, occurrence := range deleted[1:] {
			if occurrence.StartAt.Before(floor) {
				floor = occurrence.StartAt
			}
		}
	}
	if anchor.After(floor) {
		return anchor
	}
	return floor
}

// SetActive flips the active flag. Deactivation cancels future scheduled
// occurrences; reactivation generates from now.
func (s *SeriesService) SetActive(ctx context.Context, seriesID string, active bool) (result SetActiveResult, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetActive", "series_id", seriesID, "active", active)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change series state", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "series state changed", "cancelled", result.Cancelled)
	}()

	var series Series
	series, err = s.series.GetSeries(ctx, seriesID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if series.Active != active {
		series.Active = active
		series.UpdatedAt = s.now().UTC()
		if err = s.series.UpdateSeries(ctx, series); err != nil {
			err = mapRepoError(err)
			return
		}
	}
	result.Series = series

	if !active {
		result.Cancelled, err = s.cascade.Run(ctx, seriesID)
		return
	}

	var generation GenerationResult
	generation, err = s.generator.Generate(ctx, GenerateParams{SeriesID: seriesID})
	result.Generation = &generation
	if generation.LastGeneratedUntil != nil {
		result.Series.LastGeneratedUntil = generation.LastGeneratedUntil
	}
	return
}

// ListOccurrences returns a series' occurrences that start inside the
// optional [From, To) range.
func (s *SeriesService) ListOccurrences(ctx context.Context, params ListOccurrencesParams) ([]Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("SeriesService is nil")
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return nil, fieldError("to", "to must be after from")
	}
	if _, err := s.series.GetSeries(ctx, params.SeriesID); err != nil {
		return nil, mapRepoError(err)
	}

	occurrences, err := s.occurrences.ListOccurrences(ctx, OccurrenceFilter{
		SeriesID:     params.SeriesID,
		StartsFrom:   params.From,
		StartsBefore: params.To,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].StartAt.Before(occurrences[j].StartAt)
	})
	return occurrences, nil
}

// UpdateOccurrenceStatus moves a scheduled occurrence to another status.
// Terminal occurrences only accept their current status.
func (s *SeriesService) UpdateOccurrenceStatus(ctx context.Context, params UpdateOccurrenceStatusParams) (occurrence Occurrence, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateOccurrenceStatus", "occurrence_id", params.OccurrenceID, "status", params.Status)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update occurrence status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "occurrence status updated")
	}()

	status, ok := ParseOccurrenceStatus(params.Status)
	if !ok {
		err = fieldError("status", "unknown status")
		return
	}

	occurrence, err = s.occurrences.GetOccurrence(ctx, params.OccurrenceID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if occurrence.Status == status {
		return
	}
	if occurrence.Status.Terminal() {
		err = ErrOccurrenceFinalized
		return
	}

	occurrence.Status = status
	occurrence.UpdatedAt = s.now().UTC()
	if err = s.occurrences.UpdateOccurrence(ctx, occurrence); err != nil {
		err = mapRepoError(err)
		return
	}

	// No-shows keep their slot on external calendars; only cancellations
	// release it.
	kind := EventUpdated
	if status == StatusCancelled || status == StatusLateCancel {
		kind = EventCancelled
	}
	publish(ctx, s.publisher, eventFor(kind, occurrence, ""))
	return
}

func (s *SeriesService) buildSeries(input SeriesInput) (Series, error) {
	vErr := &ValidationError{}
	for field, value := range map[string]string{
		"tenant_id":  input.TenantID,
		"client_id":  input.ClientID,
		"staff_id":   input.StaffID,
		"service_id": input.ServiceID,
	} {
		if strings.TrimSpace(value) == "" {
			vErr.add(field, "required")
		}
	}
	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if input.MaxOccurrences != nil && *input.MaxOccurrences <= 0 {
		vErr.add("max_occurrences", "max occurrences must be positive")
	}
	if input.MonthsAhead < 0 {
		vErr.add("months_ahead", "months ahead cannot be negative")
	}
	if vErr.HasErrors() {
		return Series{}, vErr
	}

	startDate, err := timeconv.ParseDate(input.StartDate)
	if err != nil {
		return Series{}, invalidTime("start_date", err)
	}
	startTime, err := timeconv.ParseClock(input.LocalStartTime)
	if err != nil {
		return Series{}, invalidTime("local_start_time", err)
	}
	if _, err := timeconv.LocalToUTC(startDate, startTime, input.Timezone, s.generator.Policy()); err != nil {
		return Series{}, invalidTime("start", err)
	}
	if _, err := recurrence.ParseRule(input.RRule); err != nil {
		return Series{}, invalidRule(err)
	}

	var until *timeconv.Date
	if input.UntilDate != nil && strings.TrimSpace(*input.UntilDate) != "" {
		d, err := timeconv.ParseDate(*input.UntilDate)
		if err != nil {
			return Series{}, invalidTime("until_date", err)
		}
		if d.Before(startDate) {
			return Series{}, fieldError("until_date", "until date must not be before start date")
		}
		until = &d
	}

	now := s.now().UTC()
	return Series{
		ID:              s.idGenerator(),
		TenantID:        strings.TrimSpace(input.TenantID),
		ClientID:        strings.TrimSpace(input.ClientID),
		StaffID:         strings.TrimSpace(input.StaffID),
		ServiceID:       strings.TrimSpace(input.ServiceID),
		StartDate:       startDate,
		LocalStartTime:  startTime,
		Timezone:        strings.TrimSpace(input.Timezone),
		DurationMinutes: input.DurationMinutes,
		RRule:           strings.TrimSpace(input.RRule),
		UntilDate:       until,
		MaxOccurrences:  input.MaxOccurrences,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *SeriesService) detectConflicts(ctx context.Context, candidate Occurrence) ([]ConflictWarning, error) {
	if candidate.StaffID == "" {
		return nil, nil
	}
	start, end := candidate.StartAt, candidate.EndAt
	existing, err := s.occurrences.ListOccurrences(ctx, OccurrenceFilter{
		StaffID:      candidate.StaffID,
		Statuses:     []OccurrenceStatus{StatusScheduled, StatusDocumented},
		StartsBefore: &end,
		EndsAfter:    &start,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	appointments := make([]scheduler.Appointment, 0, len(existing))
	for _, occurrence := range existing {
		appointments = append(appointments, toAppointment(occurrence))
	}
	return toConflictWarnings(scheduler.DetectConflicts(appointments, toAppointment(candidate))), nil
}

func toAppointment(occurrence Occurrence) scheduler.Appointment {
	return scheduler.Appointment{
		ID:       occurrence.ID,
		StaffID:  occurrence.StaffID,
		ClientID: occurrence.ClientID,
		Start:    occurrence.StartAt,
		End:      occurrence.EndAt,
	}
}

func toConflictWarnings(conflicts []scheduler.Conflict) []ConflictWarning {
	if len(conflicts) == 0 {
		return nil
	}
	warnings := make([]ConflictWarning, 0, len(conflicts))
	for _, conflict := range conflicts {
		warnings = append(warnings, ConflictWarning{
			OccurrenceID: conflict.WithAppointmentID,
			Type:         string(conflict.Type),
			StaffID:      conflict.StaffID,
			ClientID:     conflict.ClientID,
		})
	}
	return warnings
}
