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

// RulePreviewRequest asks for rule text and upcoming instants of a config
// anchored at a local start.
type RulePreviewRequest struct {
	Config          recurrence.Config
	StartDate       string
	LocalStartTime  string
	Timezone        string
	DurationMinutes int
}

// RulePreview is rule text plus at most three upcoming instants.
type RulePreview struct {
	Rule    string
	Preview []time.Time
}

// RuleService backs the rule builder UI.
type RuleService struct {
	engine *recurrence.Engine
	cache  *previewCache
	now    func() time.Time
	logger *slog.Logger
}

// NewRuleService constructs a rule service.
func NewRuleService(engine *recurrence.Engine, now func() time.Time, logger *slog.Logger) *RuleService {
	if engine == nil {
		engine = recurrence.NewEngine(timeconv.DefaultPolicy())
	}
	if now == nil {
		now = time.Now
	}
	return &RuleService{
		engine: engine,
		cache:  newPreviewCache(30*time.Second, 256, now),
		now:    now,
		logger: logging.OrDefault(logger),
	}
}

// BuildRule renders the config as rule text and previews it.
func (s *RuleService) BuildRule(ctx context.Context, req RulePreviewRequest) (RulePreview, error) {
	if s == nil {
		return RulePreview{}, fmt.Errorf("RuleService is nil")
	}
	logger := logging.Service(ctx, s.logger, "RuleService", "BuildRule")

	text, err := recurrence.ToRuleText(req.Config)
	if err != nil {
		var cfgErr *recurrence.ConfigError
		if errors.As(err, &cfgErr) {
			return RulePreview{}, fieldError(cfgErr.Field, cfgErr.Message)
		}
		return RulePreview{}, invalidRule(err)
	}

	// Previews are evaluated from the start of the current minute.
	now := s.now().UTC().Truncate(time.Minute)
	key := buildPreviewCacheKey(text, req, now)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	startDate, err := timeconv.ParseDate(req.StartDate)
	if err != nil {
		return RulePreview{}, invalidTime("start_date", err)
	}
	startTime, err := timeconv.ParseClock(req.LocalStartTime)
	if err != nil {
		return RulePreview{}, invalidTime("local_start_time", err)
	}
	loc, err := timeconv.LoadZone(req.Timezone)
	if err != nil {
		return RulePreview{}, invalidTime("timezone", err)
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 1
	}

	preview, err := s.engine.Preview(recurrence.Definition{
		Rule:      text,
		StartDate: startDate,
		StartTime: startTime,
		Location:  loc,
		Duration:  time.Duration(duration) * time.Minute,
	}, now)
	if err != nil {
		return RulePreview{}, mapEngineError(err)
	}

	logger.DebugContext(ctx, "rule previewed", "rule", text, "instants", len(preview))
	result := RulePreview{Rule: text, Preview: preview}
	s.cache.Store(key, result)
	return result, nil
}

// ParseRule converts rule text back into a builder config. Unsupported text
// yields the default config.
func (s *RuleService) ParseRule(text string) recurrence.Config {
	return recurrence.FromRuleText(text)
}
