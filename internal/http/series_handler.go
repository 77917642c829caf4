package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/calendarsync"
	"github.com/example/clinic-scheduler/internal/logging"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

type seriesService interface {
	CreateSeries(ctx context.Context, input application.SeriesInput) (application.CreateSeriesResult, error)
	GetSeries(ctx context.Context, id string) (application.Series, error)
	UpdateSeries(ctx context.Context, params application.UpdateSeriesParams) (application.UpdateSeriesResult, error)
	Generate(ctx context.Context, params application.GenerateParams) (application.GenerationResult, error)
	SetActive(ctx context.Context, seriesID string, active bool) (application.SetActiveResult, error)
	ListOccurrences(ctx context.Context, params application.ListOccurrencesParams) ([]application.Occurrence, error)
	UpdateOccurrenceStatus(ctx context.Context, params application.UpdateOccurrenceStatusParams) (application.Occurrence, error)
}

// SeriesHandler serves series and occurrence endpoints.
type SeriesHandler struct {
	service   seriesService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

// NewSeriesHandler constructs a series handler.
func NewSeriesHandler(service seriesService, now func() time.Time, logger *slog.Logger) *SeriesHandler {
	if now == nil {
		now = time.Now
	}
	return &SeriesHandler{
		service:   service,
		responder: newResponder(logger),
		logger:    logging.OrDefault(logger),
		now:       now,
	}
}

func (h *SeriesHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *SeriesHandler) seriesID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return "", false
	}
	return id, true
}

// Create handles POST /series.
func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req createSeriesRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	result, err := h.service.CreateSeries(r.Context(), req.toInput())
	if err != nil && result.Series.ID == "" {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := createSeriesResponse{
		Series:     toSeriesDTO(result.Series),
		Generation: toGenerationDTO(result.Generation),
	}
	if err != nil {
		// The series is stored; only its first generation failed and can be retried.
		logging.Handler(r.Context(), h.logger, "SeriesHandler", "Create", "series_id", result.Series.ID).
			WarnContext(r.Context(), "initial generation failed", "error", err)
		response.GenerationError = application.ErrorKind(err)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, response)
}

// Get handles GET /series/{id}.
func (h *SeriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, seriesResponse{Series: toSeriesDTO(series)})
}

// Update handles PUT /series/{id}.
func (h *SeriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	var req updateSeriesRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	result, err := h.service.UpdateSeries(r.Context(), application.UpdateSeriesParams{
		SeriesID:     id,
		Scope:        application.EditScope(strings.TrimSpace(req.Scope)),
		OccurrenceID: strings.TrimSpace(req.OccurrenceID),
		Edit:         req.toEdit(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := updateSeriesResponse{
		Series:   toSeriesDTO(result.Series),
		Removed:  result.Removed,
		Warnings: toWarningDTOs(result.Warnings),
	}
	if result.Occurrence != nil {
		occurrence := toOccurrenceDTO(*result.Occurrence)
		response.Occurrence = &occurrence
	}
	if result.Regenerated != nil {
		generation := toGenerationDTO(*result.Regenerated)
		response.Regenerated = &generation
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// Generate handles POST /series/{id}/generate.
func (h *SeriesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	params := application.GenerateParams{
		SeriesID:       id,
		MonthsAhead:    req.MonthsAhead,
		MaxOccurrences: req.MaxOccurrences,
	}
	if from := strings.TrimSpace(req.FromDate); from != "" {
		date, err := timeconv.ParseDate(from)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"from_date": "invalid format"}})
			return
		}
		params.FromDate = &date
	}

	result, err := h.service.Generate(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGenerationDTO(result))
}

// Activate handles POST /series/{id}/activate.
func (h *SeriesHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /series/{id}/deactivate.
func (h *SeriesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *SeriesHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	result, err := h.service.SetActive(r.Context(), id, active)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := setActiveResponse{Series: toSeriesDTO(result.Series), Cancelled: result.Cancelled}
	if result.Generation != nil {
		generation := toGenerationDTO(*result.Generation)
		response.Generation = &generation
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// ListOccurrences handles GET /series/{id}/occurrences?from=&to=.
func (h *SeriesHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	params, err := buildListParams(id, r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	occurrences, err := h.service.ListOccurrences(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listOccurrencesResponse{Occurrences: toOccurrenceDTOs(occurrences)})
}

// Calendar handles GET /series/{id}/calendar.ics.
func (h *SeriesHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.seriesID(w, r)
	if !ok {
		return
	}

	series, err := h.service.GetSeries(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	params, err := buildListParams(id, r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	occurrences, err := h.service.ListOccurrences(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="series-`+id+`.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(calendarsync.SeriesFeed(series, occurrences, h.now()))); err != nil {
		h.responder.loggerFor(r.Context()).ErrorContext(r.Context(), "failed to write calendar feed", "error", err)
	}
}

// UpdateOccurrenceStatus handles PUT /occurrences/{id}/status.
func (h *SeriesHandler) UpdateOccurrenceStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := OccurrenceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidOccurrenceID)
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	occurrence, err := h.service.UpdateOccurrenceStatus(r.Context(), application.UpdateOccurrenceStatusParams{
		OccurrenceID: id,
		Status:       req.Status,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrenceResponse{Occurrence: toOccurrenceDTO(occurrence)})
}

func buildListParams(seriesID string, r *http.Request) (application.ListOccurrencesParams, error) {
	params := application.ListOccurrencesParams{SeriesID: seriesID}
	query := r.URL.Query()
	for key, target := range map[string]**time.Time{"from": &params.From, "to": &params.To} {
		value := strings.TrimSpace(query.Get(key))
		if value == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return application.ListOccurrencesParams{}, errInvalidQueryTime
		}
		ts = ts.UTC()
		*target = &ts
	}
	return params, nil
}
