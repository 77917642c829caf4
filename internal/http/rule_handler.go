package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/logging"
	"github.com/example/clinic-scheduler/internal/recurrence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

type ruleService interface {
	BuildRule(ctx context.Context, req application.RulePreviewRequest) (application.RulePreview, error)
	ParseRule(text string) recurrence.Config
}

// RuleHandler serves the recurrence rule builder.
type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

// NewRuleHandler constructs a rule handler.
func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		service:   service,
		responder: newResponder(logger),
		logger:    logging.OrDefault(logger),
	}
}

// Build handles POST /recurrence/rule.
func (h *RuleHandler) Build(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	cfg, err := req.toConfig()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	preview, err := h.service.BuildRule(r.Context(), application.RulePreviewRequest{
		Config:          cfg,
		StartDate:       req.StartDate,
		LocalStartTime:  req.LocalStartTime,
		Timezone:        req.Timezone,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	instants := make([]time.Time, 0, len(preview.Preview))
	for _, instant := range preview.Preview {
		instants = append(instants, instant.UTC())
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: preview.Rule, Preview: instants})
}

// Parse handles POST /recurrence/parse. Text the builder cannot express
// comes back as the default weekly config.
func (h *RuleHandler) Parse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req parseRuleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	cfg := h.service.ParseRule(req.RRule)
	logging.Handler(r.Context(), h.logger, "RuleHandler", "Parse").
		DebugContext(r.Context(), "rule parsed", "frequency", string(cfg.Frequency))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleConfigDTO(cfg))
}

func (r ruleRequest) toConfig() (recurrence.Config, error) {
	cfg := recurrence.Config{
		Frequency:      recurrence.Frequency(strings.ToUpper(r.Frequency)),
		Interval:       r.Interval,
		MonthlyPattern: recurrence.MonthlyPattern(r.MonthlyPattern),
		MonthDay:       r.MonthDay,
		Ordinal:        r.Ordinal,
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	for _, code := range r.Weekdays {
		day, ok := recurrence.ParseWeekday(code)
		if !ok {
			return recurrence.Config{}, &application.ValidationError{FieldErrors: map[string]string{"weekdays": "invalid value"}}
		}
		cfg.Weekdays = append(cfg.Weekdays, day)
	}
	if cfg.MonthlyPattern == recurrence.MonthlyByNthWeekday {
		day, ok := recurrence.ParseWeekday(r.OrdinalWeekday)
		if !ok {
			return recurrence.Config{}, &application.ValidationError{FieldErrors: map[string]string{"ordinal_weekday": "required"}}
		}
		cfg.OrdinalWeekday = day
	}
	if until := strings.TrimSpace(r.Until); until != "" {
		date, err := timeconv.ParseDate(until)
		if err != nil {
			return recurrence.Config{}, &application.ValidationError{FieldErrors: map[string]string{"until": "invalid format"}}
		}
		cfg.Until = &date
	}
	return cfg, nil
}

func toRuleConfigDTO(cfg recurrence.Config) ruleConfigDTO {
	dto := ruleConfigDTO{
		Frequency:      string(cfg.Frequency),
		Interval:       cfg.Interval,
		MonthlyPattern: string(cfg.MonthlyPattern),
		MonthDay:       cfg.MonthDay,
		Ordinal:        cfg.Ordinal,
	}
	for _, day := range cfg.Weekdays {
		dto.Weekdays = append(dto.Weekdays, recurrence.WeekdayCode(day))
	}
	if cfg.MonthlyPattern == recurrence.MonthlyByNthWeekday {
		dto.OrdinalWeekday = recurrence.WeekdayCode(cfg.OrdinalWeekday)
	}
	if cfg.Until != nil {
		until := cfg.Until.String()
		dto.Until = &until
	}
	return dto
}
