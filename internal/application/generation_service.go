package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/clinic-scheduler/internal/logging"
	"github.com/example/clinic-scheduler/internal/recurrence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

const (
	// DefaultMonthsAhead is the generation horizon when none is configured.
	DefaultMonthsAhead = 3
	// DefaultCeiling bounds every generation window relative to now.
	DefaultCeiling = 365 * 24 * time.Hour
)

// GenerationSettings configures the generation window.
type GenerationSettings struct {
	MonthsAhead int
	Ceiling     time.Duration
}

func (s GenerationSettings) normalized() GenerationSettings {
	if s.MonthsAhead <= 0 {
		s.MonthsAhead = DefaultMonthsAhead
	}
	if s.Ceiling <= 0 {
		s.Ceiling = DefaultCeiling
	}
	return s
}

// GenerateParams requests materialization of a series' upcoming occurrences.
type GenerateParams struct {
	SeriesID    string
	MonthsAhead int
	// FromDate is read as local midnight in the series' timezone. Nil means now.
	FromDate *timeconv.Date
	// MaxOccurrences caps this invocation. Zero means no per-call cap.
	MaxOccurrences int
}

// RegenerateParams requests materialization from an explicit instant,
// ignoring the watermark as the window start.
type RegenerateParams struct {
	SeriesID       string
	From           time.Time
	MonthsAhead    int
	MaxOccurrences int
}

// GenerationResult reports the outcome of one invocation.
type GenerationResult struct {
	Created            int
	Skipped            int
	LastGeneratedUntil *time.Time
}

// BatchResult summarizes a run over every active series.
type BatchResult struct {
	Series  int
	Created int
	Skipped int
	Failed  int
}

// GenerationService turns series definitions into stored occurrences.
type GenerationService struct {
	series      SeriesRepository
	occurrences OccurrenceRepository
	engine      *recurrence.Engine
	publisher   SyncPublisher
	settings    GenerationSettings
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGenerationService constructs a generation service with the provided dependencies.
func NewGenerationService(series SeriesRepository, occurrences OccurrenceRepository, engine *recurrence.Engine, publisher SyncPublisher, settings GenerationSettings, idGenerator func() string, now func() time.Time) *GenerationService {
	return NewGenerationServiceWithLogger(series, occurrences, engine, publisher, settings, idGenerator, now, nil)
}

// NewGenerationServiceWithLogger constructs a generation service with a specified logger.
func NewGenerationServiceWithLogger(series SeriesRepository, occurrences OccurrenceRepository, engine *recurrence.Engine, publisher SyncPublisher, settings GenerationSettings, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GenerationService {
	if engine == nil {
		engine = recurrence.NewEngine(timeconv.DefaultPolicy())
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GenerationService{
		series:      series,
		occurrences: occurrences,
		engine:      engine,
		publisher:   publisher,
		settings:    settings.normalized(),
		idGenerator: idGenerator,
		now:         now,
		logger:      logging.OrDefault(logger),
	}
}

func (s *GenerationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Service(ctx, s.logger, "GenerationService", operation, attrs...)
}

// Policy returns the DST policy used to resolve wall-clock values.
func (s *GenerationService) Policy() timeconv.Policy {
	return s.engine.Policy()
}

// Generate materializes the occurrences of a series from max(from, watermark)
// over the requested horizon. Inactive series are a successful no-op.
func (s *GenerationService) Generate(ctx context.Context, params GenerateParams) (result GenerationResult, err error) {
	if s == nil {
		err = fmt.Errorf("GenerationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Generate", "series_id", params.SeriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate occurrences", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "occurrences generated", "created", result.Created, "skipped", result.Skipped)
	}()

	if err = validateGenerationLimits(params.MonthsAhead, params.MaxOccurrences); err != nil {
		return
	}

	var series Series
	series, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	result.LastGeneratedUntil = series.LastGeneratedUntil
	if !series.Active {
		logger.DebugContext(ctx, "series inactive, nothing to generate")
		return
	}

	var def recurrence.Definition
	def, err = s.definition(ctx, series)
	if err != nil {
		return
	}

	now := s.now().UTC()
	from := now
	if params.FromDate != nil {
		from, err = timeconv.ResolveIn(*params.FromDate, timeconv.Clock{}, def.Location, timeconv.Policy{Gap: timeconv.GapShiftForward})
		if err != nil {
			err = invalidTime("from_date", err)
			return
		}
	}
	// The horizon is measured from the requested start, so repeating a call
	// finds nothing past the watermark to do.
	end := from.AddDate(0, s.monthsAhead(params.MonthsAhead), 0)
	start := from
	if series.LastGeneratedUntil != nil {
		if next := series.LastGeneratedUntil.Add(time.Second); next.After(start) {
			start = next
		}
	}

	result, err = s.materialize(ctx, logger, series, def, start, end, params.MaxOccurrences, now)
	return
}

// Regenerate materializes occurrences from params.From regardless of the
// watermark. The window ends at the later of the horizon and the watermark
// so that replaced occurrences are restored up to where they existed.
func (s *GenerationService) Regenerate(ctx context.Context, params RegenerateParams) (result GenerationResult, err error) {
	if s == nil {
		err = fmt.Errorf("GenerationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Regenerate", "series_id", params.SeriesID, "from", params.From)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to regenerate occurrences", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "occurrences regenerated", "created", result.Created, "skipped", result.Skipped)
	}()

	if err = validateGenerationLimits(params.MonthsAhead, params.MaxOccurrences); err != nil {
		return
	}
	if params.From.IsZero() {
		err = fieldError("from", "regeneration start is required")
		return
	}

	var series Series
	series, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	result.LastGeneratedUntil = series.LastGeneratedUntil
	if !series.Active {
		return
	}

	var def recurrence.Definition
	def, err = s.definition(ctx, series)
	if err != nil {
		return
	}

	start := params.From.UTC()
	end := start.AddDate(0, s.monthsAhead(params.MonthsAhead), 0)
	if series.LastGeneratedUntil != nil && series.LastGeneratedUntil.After(end) {
		end = *series.LastGeneratedUntil
	}

	result, err = s.materialize(ctx, logger, series, def, start, end, params.MaxOccurrences, s.now().UTC())
	return
}

// GenerateAll runs Generate with default parameters for every active series.
// A failing series is logged and counted, the rest are still processed.
func (s *GenerationService) GenerateAll(ctx context.Context) (batch BatchResult, err error) {
	if s == nil {
		err = fmt.Errorf("GenerationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GenerateAll")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate active series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "active series generated",
			"series", batch.Series,
			"created", batch.Created,
			"skipped", batch.Skipped,
			"failed", batch.Failed,
		)
	}()

	var active []Series
	active, err = s.series.ListActiveSeries(ctx)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	for _, series := range active {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return
		}
		batch.Series++
		result, genErr := s.Generate(ctx, GenerateParams{SeriesID: series.ID})
		batch.Created += result.Created
		batch.Skipped += result.Skipped
		if genErr != nil {
			batch.Failed++
			if errors.Is(genErr, context.DeadlineExceeded) || errors.Is(genErr, context.Canceled) {
				err = genErr
				return
			}
		}
	}
	return
}

// definition validates the stored series and builds the engine input.
func (s *GenerationService) definition(ctx context.Context, series Series) (recurrence.Definition, error) {
	return buildDefinition(ctx, s.series, series)
}

func buildDefinition(ctx context.Context, store SeriesRepository, series Series) (recurrence.Definition, error) {
	loc, err := timeconv.LoadZone(series.Timezone)
	if err != nil {
		return recurrence.Definition{}, invalidTime("timezone", err)
	}
	if _, err := recurrence.ParseRule(series.RRule); err != nil {
		return recurrence.Definition{}, invalidRule(err)
	}
	if series.DurationMinutes <= 0 {
		return recurrence.Definition{}, fieldError("duration_minutes", "duration must be positive")
	}

	var exclusions []time.Time
	if store != nil && series.ID != "" {
		exclusions, err = store.ListExclusions(ctx, series.ID)
		if err != nil {
			return recurrence.Definition{}, mapRepoError(err)
		}
	}

	return recurrence.Definition{
		Rule:       series.RRule,
		StartDate:  series.StartDate,
		StartTime:  series.LocalStartTime,
		Location:   loc,
		Duration:   series.Duration(),
		Exclusions: exclusions,
	}, nil
}

// materialize expands def over [start, end] after the until and ceiling
// clamps, upserts every instance, and advances the watermark over the
// contiguous prefix of instances that were written or already present.
func (s *GenerationService) materialize(ctx context.Context, logger *slog.Logger, series Series, def recurrence.Definition, start, end time.Time, perCall int, now time.Time) (GenerationResult, error) {
	result := GenerationResult{LastGeneratedUntil: series.LastGeneratedUntil}

	if series.UntilDate != nil {
		untilEnd, err := timeconv.EndOfDay(*series.UntilDate, def.Location)
		if err != nil {
			return result, invalidTime("until_date", err)
		}
		if untilEnd.Before(end) {
			end = untilEnd
		}
	}
	if ceiling := now.Add(s.settings.Ceiling); ceiling.Before(end) {
		end = ceiling
	}
	if end.Before(start) {
		logger.DebugContext(ctx, "generation window is empty", "window_start", start, "window_end", end)
		return result, nil
	}

	limit := perCall
	if series.MaxOccurrences != nil {
		existing, err := s.occurrences.CountSeriesOccurrences(ctx, series.ID)
		if err != nil {
			return result, mapRepoError(err)
		}
		// Excluded instants were produced once and still count.
		remaining := *series.MaxOccurrences - existing - len(def.Exclusions)
		if remaining <= 0 {
			logger.DebugContext(ctx, "series reached max occurrences", "max_occurrences", *series.MaxOccurrences)
			return result, nil
		}
		if limit <= 0 || remaining < limit {
			limit = remaining
		}
	}

	expansion, err := s.engine.Expand(def, recurrence.Window{Start: start, End: end}, limit)
	if err != nil {
		return result, mapEngineError(err)
	}
	if expansion.Skipped > 0 {
		logger.WarnContext(ctx, "wall-clock values inside a DST gap were skipped", "count", expansion.Skipped)
	}

	var (
		covered time.Time
		broken  bool
	)
	for _, instance := range expansion.Instances {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.advance(ctx, logger, series, covered, now, &result)
			return result, ctxErr
		}

		seriesID := series.ID
		occurrence := Occurrence{
			ID:        s.idGenerator(),
			TenantID:  series.TenantID,
			SeriesID:  &seriesID,
			ClientID:  series.ClientID,
			StaffID:   series.StaffID,
			ServiceID: series.ServiceID,
			StartAt:   instance.Start,
			EndAt:     instance.End,
			Status:    StatusScheduled,
			CreatedAt: now,
			UpdatedAt: now,
		}

		inserted, insertErr := s.occurrences.InsertOccurrence(ctx, occurrence)
		switch {
		case insertErr != nil:
			result.Skipped++
			broken = true
			logger.WarnContext(ctx, "failed to write occurrence", "start_at", instance.Start, "error", insertErr)
			continue
		case !inserted:
			result.Skipped++
		default:
			result.Created++
			publish(ctx, s.publisher, eventFor(EventCreated, occurrence, series.ID))
		}
		if !broken {
			covered = instance.Start
		}
	}

	s.advance(ctx, logger, series, covered, now, &result)
	return result, nil
}

// advance moves the watermark to covered. A failed watermark write only
// means the next run walks the same instants again, so it is logged.
func (s *GenerationService) advance(ctx context.Context, logger *slog.Logger, series Series, covered, now time.Time, result *GenerationResult) {
	if covered.IsZero() {
		return
	}
	if series.LastGeneratedUntil != nil && !covered.After(*series.LastGeneratedUntil) {
		return
	}
	if err := s.series.AdvanceWatermark(ctx, series.ID, covered, now); err != nil {
		logger.WarnContext(ctx, "failed to advance watermark", "until", covered, "error", err)
		return
	}
	until := covered
	result.LastGeneratedUntil = &until
}

func (s *GenerationService) monthsAhead(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.settings.MonthsAhead
}

func validateGenerationLimits(monthsAhead, maxOccurrences int) error {
	vErr := &ValidationError{}
	if monthsAhead < 0 {
		vErr.add("months_ahead", "months ahead cannot be negative")
	}
	if maxOccurrences < 0 {
		vErr.add("max_occurrences", "max occurrences cannot be negative")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrInvalidRule):
		return invalidRule(err)
	case errors.Is(err, recurrence.ErrInvalidDuration):
		return fieldError("duration_minutes", "duration must be positive")
	case errors.Is(err, recurrence.ErrInvalidDefinition), errors.Is(err, timeconv.ErrInvalidInput):
		return invalidTime("start", err)
	case errors.Is(err, recurrence.ErrInvalidWindow):
		return fieldError("window", "generation window is invalid")
	}
	return err
}
