package http

import (
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
)

type createSeriesRequest struct {
	TenantID        string  `json:"tenant_id" validate:"required"`
	ClientID        string  `json:"client_id" validate:"required"`
	StaffID         string  `json:"staff_id" validate:"required"`
	ServiceID       string  `json:"service_id" validate:"required"`
	StartDate       string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	LocalStartTime  string  `json:"local_start_time" validate:"required"`
	Timezone        string  `json:"timezone" validate:"required,timezone"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1"`
	RRule           string  `json:"rrule" validate:"required"`
	UntilDate       *string `json:"until_date" validate:"omitempty,datetime=2006-01-02"`
	MaxOccurrences  *int    `json:"max_occurrences" validate:"omitempty,min=1"`
	MonthsAhead     int     `json:"months_ahead" validate:"gte=0,lte=24"`
}

func (r createSeriesRequest) toInput() application.SeriesInput {
	return application.SeriesInput{
		TenantID:        strings.TrimSpace(r.TenantID),
		ClientID:        strings.TrimSpace(r.ClientID),
		StaffID:         strings.TrimSpace(r.StaffID),
		ServiceID:       strings.TrimSpace(r.ServiceID),
		StartDate:       r.StartDate,
		LocalStartTime:  r.LocalStartTime,
		Timezone:        r.Timezone,
		DurationMinutes: r.DurationMinutes,
		RRule:           r.RRule,
		UntilDate:       r.UntilDate,
		MaxOccurrences:  r.MaxOccurrences,
		MonthsAhead:     r.MonthsAhead,
	}
}

// updateSeriesRequest leaves absent fields unchanged. An empty until_date
// clears it.
type updateSeriesRequest struct {
	Scope           string  `json:"scope" validate:"omitempty,oneof=this_only this_and_future entire_series"`
	OccurrenceID    string  `json:"occurrence_id"`
	StartDate       *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	LocalStartTime  *string `json:"local_start_time"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=1"`
	Timezone        *string `json:"timezone" validate:"omitempty,timezone"`
	RRule           *string `json:"rrule"`
	UntilDate       *string `json:"until_date"`
	MaxOccurrences  *int    `json:"max_occurrences" validate:"omitempty,gte=0"`
}

func (r updateSeriesRequest) toEdit() application.SeriesEdit {
	return application.SeriesEdit{
		StartDate:       r.StartDate,
		LocalStartTime:  r.LocalStartTime,
		DurationMinutes: r.DurationMinutes,
		Timezone:        r.Timezone,
		RRule:           r.RRule,
		UntilDate:       r.UntilDate,
		MaxOccurrences:  r.MaxOccurrences,
	}
}

type generateRequest struct {
	MonthsAhead    int    `json:"months_ahead" validate:"gte=0,lte=24"`
	FromDate       string `json:"from_date" validate:"omitempty,datetime=2006-01-02"`
	MaxOccurrences int    `json:"max_occurrences" validate:"gte=0"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled documented cancelled late_cancel noshow"`
}

type seriesDTO struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ClientID           string     `json:"client_id"`
	StaffID            string     `json:"staff_id"`
	ServiceID          string     `json:"service_id"`
	StartDate          string     `json:"start_date"`
	LocalStartTime     string     `json:"local_start_time"`
	Timezone           string     `json:"timezone"`
	DurationMinutes    int        `json:"duration_minutes"`
	RRule              string     `json:"rrule"`
	UntilDate          *string    `json:"until_date,omitempty"`
	MaxOccurrences     *int       `json:"max_occurrences,omitempty"`
	Active             bool       `json:"active"`
	LastGeneratedUntil *time.Time `json:"last_generated_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toSeriesDTO(series application.Series) seriesDTO {
	dto := seriesDTO{
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
		MaxOccurrences:     series.MaxOccurrences,
		Active:             series.Active,
		LastGeneratedUntil: series.LastGeneratedUntil,
		CreatedAt:          series.CreatedAt,
		UpdatedAt:          series.UpdatedAt,
	}
	if series.UntilDate != nil {
		until := series.UntilDate.String()
		dto.UntilDate = &until
	}
	return dto
}

type occurrenceDTO struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	SeriesID    *string   `json:"series_id,omitempty"`
	ClientID    string    `json:"client_id"`
	StaffID     string    `json:"staff_id"`
	ServiceID   string    `json:"service_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Status      string    `json:"status"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	CostCents   *int64    `json:"cost_cents,omitempty"`
}

func toOccurrenceDTO(occurrence application.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		ID:          occurrence.ID,
		TenantID:    occurrence.TenantID,
		SeriesID:    occurrence.SeriesID,
		ClientID:    occurrence.ClientID,
		StaffID:     occurrence.StaffID,
		ServiceID:   occurrence.ServiceID,
		StartAt:     occurrence.StartAt.UTC(),
		EndAt:       occurrence.EndAt.UTC(),
		Status:      string(occurrence.Status),
		Title:       occurrence.Title,
		Description: occurrence.Description,
		CostCents:   occurrence.CostCents,
	}
}

func toOccurrenceDTOs(occurrences []application.Occurrence) []occurrenceDTO {
	dtos := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		dtos = append(dtos, toOccurrenceDTO(occurrence))
	}
	return dtos
}

type generationDTO struct {
	Created            int        `json:"created"`
	Skipped            int        `json:"skipped"`
	LastGeneratedUntil *time.Time `json:"last_generated_until,omitempty"`
}

func toGenerationDTO(result application.GenerationResult) generationDTO {
	return generationDTO{
		Created:            result.Created,
		Skipped:            result.Skipped,
		LastGeneratedUntil: result.LastGeneratedUntil,
	}
}

type warningDTO struct {
	OccurrenceID string `json:"occurrence_id"`
	Type         string `json:"type"`
	StaffID      string `json:"staff_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []warningDTO {
	if len(warnings) == 0 {
		return nil
	}
	dtos := make([]warningDTO, 0, len(warnings))
	for _, warning := range warnings {
		dtos = append(dtos, warningDTO{
			OccurrenceID: warning.OccurrenceID,
			Type:         warning.Type,
			StaffID:      warning.StaffID,
			ClientID:     warning.ClientID,
		})
	}
	return dtos
}

type seriesResponse struct {
	Series seriesDTO `json:"series"`
}

type createSeriesResponse struct {
	Series          seriesDTO     `json:"series"`
	Generation      generationDTO `json:"generation"`
	GenerationError string        `json:"generation_error,omitempty"`
}

type updateSeriesResponse struct {
	Series      seriesDTO      `json:"series"`
	Occurrence  *occurrenceDTO `json:"occurrence,omitempty"`
	Regenerated *generationDTO `json:"regenerated,omitempty"`
	Removed     int            `json:"removed"`
	Warnings    []warningDTO   `json:"warnings,omitempty"`
}

type setActiveResponse struct {
	Series     seriesDTO      `json:"series"`
	Cancelled  int            `json:"cancelled"`
	Generation *generationDTO `json:"generation,omitempty"`
}

type listOccurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type occurrenceResponse struct {
	Occurrence occurrenceDTO `json:"occurrence"`
}

type ruleRequest struct {
	Frequency       string   `json:"frequency" validate:"required,oneof=WEEKLY MONTHLY"`
	Interval        int      `json:"interval" validate:"omitempty,min=1"`
	Weekdays        []string `json:"weekdays" validate:"omitempty,dive,oneof=MO TU WE TH FR SA SU"`
	MonthlyPattern  string   `json:"monthly_pattern" validate:"omitempty,oneof=day nth_weekday"`
	MonthDay        int      `json:"month_day" validate:"omitempty,min=1,max=31"`
	Ordinal         int      `json:"ordinal" validate:"omitempty,oneof=-1 1 2 3 4"`
	OrdinalWeekday  string   `json:"ordinal_weekday" validate:"omitempty,oneof=MO TU WE TH FR SA SU"`
	Until           string   `json:"until" validate:"omitempty,datetime=2006-01-02"`
	StartDate       string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	LocalStartTime  string   `json:"local_start_time" validate:"required"`
	Timezone        string   `json:"timezone" validate:"required,timezone"`
	DurationMinutes int      `json:"duration_minutes" validate:"omitempty,min=1"`
}

type parseRuleRequest struct {
	RRule string `json:"rrule"`
}

type ruleConfigDTO struct {
	Frequency      string   `json:"frequency"`
	Interval       int      `json:"interval"`
	Weekdays       []string `json:"weekdays,omitempty"`
	MonthlyPattern string   `json:"monthly_pattern,omitempty"`
	MonthDay       int      `json:"month_day,omitempty"`
	Ordinal        int      `json:"ordinal,omitempty"`
	OrdinalWeekday string   `json:"ordinal_weekday,omitempty"`
	Until          *string  `json:"until,omitempty"`
}

type ruleResponse struct {
	Rule    string      `json:"rule"`
	Preview []time.Time `json:"preview"`
}
