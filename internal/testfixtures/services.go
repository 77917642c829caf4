package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/recurrence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Policy      timeconv.Policy
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Policy:      timeconv.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithPolicy overrides the DST policy of engines built by the factory.
func WithPolicy(policy timeconv.Policy) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Policy = policy
	}
}

// Engine returns a recurrence engine using the factory policy.
func (f *ServiceFactory) Engine() *recurrence.Engine {
	return recurrence.NewEngine(f.Policy)
}

// GenerationServiceDeps captures dependencies for constructing a generation service.
type GenerationServiceDeps struct {
	Series      application.SeriesRepository
	Occurrences application.OccurrenceRepository
	Publisher   application.SyncPublisher
	Settings    application.GenerationSettings
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewGenerationService builds a generation service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewGenerationService(deps GenerationServiceDeps) *application.GenerationService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewGenerationServiceWithLogger(
		deps.Series,
		deps.Occurrences,
		f.Engine(),
		deps.Publisher,
		deps.Settings,
		idGen,
		now,
		deps.Logger,
	)
}

// SeriesServiceDeps captures dependencies for constructing a series service.
// When Generator is nil one is built from the same repositories.
type SeriesServiceDeps struct {
	Series      application.SeriesRepository
	Occurrences application.OccurrenceRepository
	Generator   *application.GenerationService
	Publisher   application.SyncPublisher
	Settings    application.GenerationSettings
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewSeriesService builds a series service using the supplied dependencies.
func (f *ServiceFactory) NewSeriesService(deps SeriesServiceDeps) *application.SeriesService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	generator := deps.Generator
	if generator == nil {
		generator = f.NewGenerationService(GenerationServiceDeps{
			Series:      deps.Series,
			Occurrences: deps.Occurrences,
			Publisher:   deps.Publisher,
			Settings:    deps.Settings,
			IDGenerator: idGen,
			Now:         now,
			Logger:      deps.Logger,
		})
	}
	return application.NewSeriesServiceWithLogger(
		deps.Series,
		deps.Occurrences,
		generator,
		deps.Publisher,
		idGen,
		now,
		deps.Logger,
	)
}

// NewRuleService builds a rule service on the factory clock.
func (f *ServiceFactory) NewRuleService(logger *slog.Logger) *application.RuleService {
	return application.NewRuleService(f.Engine(), f.Clock.NowFunc(), logger)
}
