package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/persistence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

var (
	seriesCounter     uint64
	occurrenceCounter uint64
)

var referenceTime = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Series fixtures -----------------------------

// SeriesFixture is a deterministic series definition. The default is a
// Monday/Wednesday/Friday 09:00 Chicago series of 50 minute sessions starting
// on Monday 2025-01-06.
type SeriesFixture struct {
	ID                 string
	TenantID           string
	ClientID           string
	StaffID            string
	ServiceID          string
	StartDate          string
	LocalStartTime     string
	Timezone           string
	DurationMinutes    int
	RRule              string
	UntilDate          *string
	MaxOccurrences     *int
	Active             bool
	LastGeneratedUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SeriesOption configures the generated series fixture.
type SeriesOption func(*SeriesFixture)

// NewSeriesFixture returns a deterministic series fixture with optional overrides.
func NewSeriesFixture(opts ...SeriesOption) SeriesFixture {
	idx := atomic.AddUint64(&seriesCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := SeriesFixture{
		ID:              fmt.Sprintf("series-%03d", idx),
		TenantID:        "tenant-1",
		ClientID:        fmt.Sprintf("client-%03d", idx),
		StaffID:         "staff-1",
		ServiceID:       "service-1",
		StartDate:       "2025-01-06",
		LocalStartTime:  "09:00",
		Timezone:        "America/Chicago",
		DurationMinutes: 50,
		RRule:           "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		Active:          true,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSeriesID overrides the generated series ID.
func WithSeriesID(id string) SeriesOption {
	return func(f *SeriesFixture) {
		f.ID = id
	}
}

// WithSeriesStaff overrides the staff member.
func WithSeriesStaff(staffID string) SeriesOption {
	return func(f *SeriesFixture) {
		f.StaffID = staffID
	}
}

// WithSeriesStart overrides the local anchor.
func WithSeriesStart(date, clock, zone string) SeriesOption {
	return func(f *SeriesFixture) {
		f.StartDate = date
		f.LocalStartTime = clock
		f.Timezone = zone
	}
}

// WithSeriesRule overrides the recurrence rule text.
func WithSeriesRule(rule string) SeriesOption {
	return func(f *SeriesFixture) {
		f.RRule = rule
	}
}

// WithSeriesDuration overrides the appointment length in minutes.
func WithSeriesDuration(minutes int) SeriesOption {
	return func(f *SeriesFixture) {
		f.DurationMinutes = minutes
	}
}

// WithSeriesUntil sets an inclusive until date.
func WithSeriesUntil(date string) SeriesOption {
	return func(f *SeriesFixture) {
		f.UntilDate = &date
	}
}

// WithSeriesMaxOccurrences caps the total number of occurrences.
func WithSeriesMaxOccurrences(limit int) SeriesOption {
	return func(f *SeriesFixture) {
		f.MaxOccurrences = &limit
	}
}

// WithSeriesInactive marks the series as deactivated.
func WithSeriesInactive() SeriesOption {
	return func(f *SeriesFixture) {
		f.Active = false
	}
}

// WithSeriesWatermark sets the generation watermark.
func WithSeriesWatermark(until time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		until = until.UTC()
		f.LastGeneratedUntil = &until
	}
}

// WithSeriesTimestamps overrides the created and updated timestamps.
func WithSeriesTimestamps(created, updated time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Persistence converts the fixture into a persistence.Series.
func (f SeriesFixture) Persistence() persistence.Series {
	return persistence.Series{
		ID:                 f.ID,
		TenantID:           f.TenantID,
		ClientID:           f.ClientID,
		StaffID:            f.StaffID,
		ServiceID:          f.ServiceID,
		StartDate:          f.StartDate,
		LocalStartTime:     f.LocalStartTime,
		Timezone:           f.Timezone,
		DurationMinutes:    f.DurationMinutes,
		RRule:              f.RRule,
		UntilDate:          cloneString(f.UntilDate),
		MaxOccurrences:     cloneInt(f.MaxOccurrences),
		Active:             f.Active,
		LastGeneratedUntil: cloneTime(f.LastGeneratedUntil),
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// Application converts the fixture into an application.Series. It panics on
// malformed dates or clock values, which only a broken fixture can produce.
func (f SeriesFixture) Application() application.Series {
	series := application.Series{
		ID:                 f.ID,
		TenantID:           f.TenantID,
		ClientID:           f.ClientID,
		StaffID:            f.StaffID,
		ServiceID:          f.ServiceID,
		StartDate:          mustDate(f.StartDate),
		LocalStartTime:     mustClock(f.LocalStartTime),
		Timezone:           f.Timezone,
		DurationMinutes:    f.DurationMinutes,
		RRule:              f.RRule,
		MaxOccurrences:     cloneInt(f.MaxOccurrences),
		Active:             f.Active,
		LastGeneratedUntil: cloneTime(f.LastGeneratedUntil),
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
	if f.UntilDate != nil {
		until := mustDate(*f.UntilDate)
		series.UntilDate = &until
	}
	return series
}

// Input converts the fixture into the payload accepted by CreateSeries.
func (f SeriesFixture) Input() application.SeriesInput {
	return application.SeriesInput{
		TenantID:        f.TenantID,
		ClientID:        f.ClientID,
		StaffID:         f.StaffID,
		ServiceID:       f.ServiceID,
		StartDate:       f.StartDate,
		LocalStartTime:  f.LocalStartTime,
		Timezone:        f.Timezone,
		DurationMinutes: f.DurationMinutes,
		RRule:           f.RRule,
		UntilDate:       cloneString(f.UntilDate),
		MaxOccurrences:  cloneInt(f.MaxOccurrences),
	}
}

// --------------------------- Occurrence fixtures ---------------------------

// OccurrenceFixture is a deterministic occurrence. The default is a scheduled
// standalone 50 minute appointment at ReferenceTime.
type OccurrenceFixture struct {
	ID          string
	TenantID    string
	SeriesID    *string
	ClientID    string
	StaffID     string
	ServiceID   string
	StartAt     time.Time
	EndAt       time.Time
	Status      string
	Title       *string
	Description *string
	CostCents   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OccurrenceOption configures the generated occurrence fixture.
type OccurrenceOption func(*OccurrenceFixture)

// NewOccurrenceFixture returns a deterministic occurrence fixture with optional overrides.
func NewOccurrenceFixture(opts ...OccurrenceOption) OccurrenceFixture {
	idx := atomic.AddUint64(&occurrenceCounter, 1)
	fixture := OccurrenceFixture{
		ID:        fmt.Sprintf("occurrence-%03d", idx),
		TenantID:  "tenant-1",
		ClientID:  "client-1",
		StaffID:   "staff-1",
		ServiceID: "service-1",
		StartAt:   referenceTime,
		EndAt:     referenceTime.Add(50 * time.Minute),
		Status:    persistence.StatusScheduled,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithOccurrenceID overrides the generated occurrence ID.
func WithOccurrenceID(id string) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.ID = id
	}
}

// WithOccurrenceSeries links the occurrence to a series.
func WithOccurrenceSeries(seriesID string) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.SeriesID = &seriesID
	}
}

// WithOccurrenceStaff overrides the staff member.
func WithOccurrenceStaff(staffID string) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.StaffID = staffID
	}
}

// WithOccurrenceWindow sets the start and derives the end from duration.
func WithOccurrenceWindow(start time.Time, duration time.Duration) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.StartAt = start.UTC()
		f.EndAt = start.UTC().Add(duration)
	}
}

// WithOccurrenceStatus overrides the status.
func WithOccurrenceStatus(status string) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.Status = status
	}
}

// WithOccurrenceTitle sets the optional display title.
func WithOccurrenceTitle(title string) OccurrenceOption {
	return func(f *OccurrenceFixture) {
		f.Title = &title
	}
}

// Persistence converts the fixture into a persistence.Occurrence.
func (f OccurrenceFixture) Persistence() persistence.Occurrence {
	return persistence.Occurrence{
		ID:          f.ID,
		TenantID:    f.TenantID,
		SeriesID:    cloneString(f.SeriesID),
		ClientID:    f.ClientID,
		StaffID:     f.StaffID,
		ServiceID:   f.ServiceID,
		StartAt:     f.StartAt,
		EndAt:       f.EndAt,
		Status:      f.Status,
		Title:       cloneString(f.Title),
		Description: cloneString(f.Description),
		CostCents:   cloneInt64(f.CostCents),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Application converts the fixture into an application.Occurrence.
func (f OccurrenceFixture) Application() application.Occurrence {
	return application.Occurrence{
		ID:          f.ID,
		TenantID:    f.TenantID,
		SeriesID:    cloneString(f.SeriesID),
		ClientID:    f.ClientID,
		StaffID:     f.StaffID,
		ServiceID:   f.ServiceID,
		StartAt:     f.StartAt,
		EndAt:       f.EndAt,
		Status:      application.OccurrenceStatus(f.Status),
		Title:       cloneString(f.Title),
		Description: cloneString(f.Description),
		CostCents:   cloneInt64(f.CostCents),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func mustDate(value string) timeconv.Date {
	d, err := timeconv.ParseDate(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: %v", err))
	}
	return d
}

func mustClock(value string) timeconv.Clock {
	c, err := timeconv.ParseClock(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: %v", err))
	}
	return c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
