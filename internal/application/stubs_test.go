package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

type memorySeriesRepo struct {
	mu         sync.Mutex
	series     map[string]Series
	exclusions map[string][]time.Time

	getErr       error
	watermarkErr error
	advanced     []time.Time
}

func newMemorySeriesRepo() *memorySeriesRepo {
	return &memorySeriesRepo{
		series:     make(map[string]Series),
		exclusions: make(map[string][]time.Time),
	}
}

func (r *memorySeriesRepo) CreateSeries(ctx context.Context, series Series) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.series[series.ID]; ok {
		return ErrAlreadyExists
	}
	r.series[series.ID] = series
	return nil
}

func (r *memorySeriesRepo) UpdateSeries(ctx context.Context, series Series) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.series[series.ID]
	if !ok {
		return ErrNotFound
	}
	series.LastGeneratedUntil = stored.LastGeneratedUntil
	r.series[series.ID] = series
	return nil
}

func (r *memorySeriesRepo) GetSeries(ctx context.Context, id string) (Series, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return Series{}, r.getErr
	}
	series, ok := r.series[id]
	if !ok {
		return Series{}, ErrNotFound
	}
	return series, nil
}

func (r *memorySeriesRepo) ListActiveSeries(ctx context.Context) ([]Series, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Series
	for _, series := range r.series {
		if series.Active {
			out = append(out, series)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memorySeriesRepo) AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watermarkErr != nil {
		return r.watermarkErr
	}
	series, ok := r.series[id]
	if !ok {
		return ErrNotFound
	}
	r.advanced = append(r.advanced, until)
	if series.LastGeneratedUntil == nil || series.LastGeneratedUntil.Before(until) {
		u := until
		series.LastGeneratedUntil = &u
		r.series[id] = series
	}
	return nil
}

func (r *memorySeriesRepo) AddExclusion(ctx context.Context, seriesID string, startAt, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.exclusions[seriesID] {
		if existing.Equal(startAt) {
			return nil
		}
	}
	r.exclusions[seriesID] = append(r.exclusions[seriesID], startAt)
	return nil
}

func (r *memorySeriesRepo) ListExclusions(ctx context.Context, seriesID string) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.exclusions[seriesID]...), nil
}

func (r *memorySeriesRepo) get(t *testing.T, id string) Series {
	t.Helper()
	series, err := r.GetSeries(context.Background(), id)
	if err != nil {
		t.Fatalf("series %s not stored: %v", id, err)
	}
	return series
}

type memoryOccurrenceRepo struct {
	mu          sync.Mutex
	occurrences map[string]Occurrence

	// failAt makes InsertOccurrence fail for the given start instants, keyed
	// by unix seconds.
	failAt map[int64]error
}

func newMemoryOccurrenceRepo() *memoryOccurrenceRepo {
	return &memoryOccurrenceRepo{occurrences: make(map[string]Occurrence)}
}

func (r *memoryOccurrenceRepo) InsertOccurrence(ctx context.Context, occurrence Occurrence) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failAt[occurrence.StartAt.Unix()]; ok {
		return false, err
	}
	if _, ok := r.occurrences[occurrence.ID]; ok {
		return false, ErrAlreadyExists
	}
	if occurrence.SeriesID != nil {
		for _, existing := range r.occurrences {
			if existing.BelongsTo(*occurrence.SeriesID) && existing.StartAt.Equal(occurrence.StartAt) {
				return false, nil
			}
		}
	}
	r.occurrences[occurrence.ID] = occurrence
	return true, nil
}

func (r *memoryOccurrenceRepo) UpdateOccurrence(ctx context.Context, occurrence Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.occurrences[occurrence.ID]; !ok {
		return ErrNotFound
	}
	r.occurrences[occurrence.ID] = occurrence
	return nil
}

func (r *memoryOccurrenceRepo) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	occurrence, ok := r.occurrences[id]
	if !ok {
		return Occurrence{}, ErrNotFound
	}
	return occurrence, nil
}

func (r *memoryOccurrenceRepo) ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Occurrence
	for _, occurrence := range r.occurrences {
		if filter.SeriesID != "" && !occurrence.BelongsTo(filter.SeriesID) {
			continue
		}
		if filter.StaffID != "" && occurrence.StaffID != filter.StaffID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, occurrence.Status) {
			continue
		}
		if filter.StartsFrom != nil && occurrence.StartAt.Before(*filter.StartsFrom) {
			continue
		}
		if filter.StartsBefore != nil && !occurrence.StartAt.Before(*filter.StartsBefore) {
			continue
		}
		if filter.EndsAfter != nil && !occurrence.EndAt.After(*filter.EndsAfter) {
			continue
		}
		out = append(out, occurrence)
	}
	sortByStart(out)
	return out, nil
}

func (r *memoryOccurrenceRepo) CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, occurrence := range r.occurrences {
		if occurrence.BelongsTo(seriesID) {
			count++
		}
	}
	return count, nil
}

func (r *memoryOccurrenceRepo) DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []Occurrence
	for id, occurrence := range r.occurrences {
		if occurrence.BelongsTo(seriesID) && occurrence.Status == StatusScheduled && !occurrence.StartAt.Before(from) {
			deleted = append(deleted, occurrence)
			delete(r.occurrences, id)
		}
	}
	sortByStart(deleted)
	return deleted, nil
}

func (r *memoryOccurrenceRepo) CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cancelled []Occurrence
	for id, occurrence := range r.occurrences {
		if occurrence.BelongsTo(seriesID) && occurrence.Status == StatusScheduled && occurrence.StartAt.After(after) {
			occurrence.Status = StatusCancelled
			occurrence.UpdatedAt = updatedAt
			r.occurrences[id] = occurrence
			cancelled = append(cancelled, occurrence)
		}
	}
	sortByStart(cancelled)
	return cancelled, nil
}

func (r *memoryOccurrenceRepo) forSeries(seriesID string) []Occurrence {
	out, _ := r.ListOccurrences(context.Background(), OccurrenceFilter{SeriesID: seriesID})
	return out
}

func (r *memoryOccurrenceRepo) setStatus(t *testing.T, seriesID string, start time.Time, status OccurrenceStatus) Occurrence {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, occurrence := range r.occurrences {
		if occurrence.BelongsTo(seriesID) && occurrence.StartAt.Equal(start) {
			occurrence.Status = status
			r.occurrences[id] = occurrence
			return occurrence
		}
	}
	t.Fatalf("no occurrence of %s at %v", seriesID, start)
	return Occurrence{}
}

func containsStatus(statuses []OccurrenceStatus, status OccurrenceStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortByStart(occurrences []Occurrence) {
	sort.Slice(occurrences, func(i, j int) bool {
		if occurrences[i].StartAt.Equal(occurrences[j].StartAt) {
			return occurrences[i].ID < occurrences[j].ID
		}
		return occurrences[i].StartAt.Before(occurrences[j].StartAt)
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OccurrenceEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event OccurrenceEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(kind EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, event := range p.events {
		if event.Kind == kind {
			n++
		}
	}
	return n
}

type sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *sequence) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

type harness struct {
	series      *memorySeriesRepo
	occurrences *memoryOccurrenceRepo
	publisher   *recordingPublisher
	now         time.Time
	generator   *GenerationService
	service     *SeriesService
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		series:      newMemorySeriesRepo(),
		occurrences: newMemoryOccurrenceRepo(),
		publisher:   &recordingPublisher{},
		now:         now,
	}
	ids := &sequence{prefix: "id"}
	clock := func() time.Time { return h.now }
	h.generator = NewGenerationService(h.series, h.occurrences, nil, h.publisher, GenerationSettings{}, ids.next, clock)
	h.service = NewSeriesService(h.series, h.occurrences, h.generator, h.publisher, ids.next, clock)
	return h
}

func (h *harness) addSeries(t *testing.T, series Series) Series {
	t.Helper()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = h.now
		series.UpdatedAt = h.now
	}
	if err := h.series.CreateSeries(context.Background(), series); err != nil {
		t.Fatalf("CreateSeries failed: %v", err)
	}
	return series
}

func mustDate(t *testing.T, value string) timeconv.Date {
	t.Helper()
	d, err := timeconv.ParseDate(value)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", value, err)
	}
	return d
}

func mustClock(t *testing.T, value string) timeconv.Clock {
	t.Helper()
	c, err := timeconv.ParseClock(value)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", value, err)
	}
	return c
}

// mwfSeries is a Monday/Wednesday/Friday 09:00 Chicago series from 2025-01-06.
func mwfSeries(t *testing.T) Series {
	t.Helper()
	return Series{
		ID:              "series-mwf",
		TenantID:        "tenant-1",
		ClientID:        "client-1",
		StaffID:         "staff-1",
		ServiceID:       "service-1",
		StartDate:       mustDate(t, "2025-01-06"),
		LocalStartTime:  mustClock(t, "09:00"),
		Timezone:        "America/Chicago",
		DurationMinutes: 50,
		RRule:           "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		Active:          true,
	}
}

var errTransient = errors.New("disk I/O error")
