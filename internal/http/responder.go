package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/logging"
)

var (
	errBadRequestBody      = errors.New("無効なリクエスト形式です。")
	errInvalidSeriesID     = errors.New("無効なシリーズ ID です。")
	errInvalidOccurrenceID = errors.New("無効な予約 ID です。")
	errInvalidQueryTime    = errors.New("日時は RFC3339 形式で指定してください。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: logging.OrDefault(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrInvalidRecurrenceRule):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_RECURRENCE_RULE",
			Message:   "繰り返しルールが正しくありません。",
		})
	case errors.Is(err, application.ErrInvalidTimeInput):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_TIME_INPUT",
			Message:   "日付、時刻、またはタイムゾーンが正しくありません。",
		})
	case errors.Is(err, application.ErrOccurrenceFinalized):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "OCCURRENCE_FINALIZED",
			Message:   "確定済みの予約は変更できません。",
		})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "ALREADY_EXISTS", Message: localizedStatusMessage(http.StatusConflict)})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "入力内容に誤りがあります。",
			Errors:    localizeValidationErrors(vErr),
		})
	case errors.Is(err, context.DeadlineExceeded):
		r.loggerFor(ctx).ErrorContext(ctx, "request timed out", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: localizedStatusMessage(http.StatusServiceUnavailable)})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "処理がタイムアウトしました。しばらくしてから再度お試しください。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "required":
		return "必須項目です。"
	case "duration must be positive":
		return "所要時間は正の整数で指定してください。"
	case "max occurrences must be positive":
		return "最大回数は正の整数で指定してください。"
	case "max occurrences cannot be negative", "months ahead cannot be negative":
		return "負の値は指定できません。"
	case "until date must not be before start date":
		return "終了日は開始日以降の日付を指定してください。"
	case "to must be after from":
		return "終了日時は開始日時より後である必要があります。"
	case "unknown status":
		return "不明なステータスです。"
	case "occurrence is required for this scope":
		return "この範囲の変更には予約 ID が必要です。"
	case "occurrence does not belong to the series":
		return "指定された予約はこのシリーズに属していません。"
	case "invalid format":
		return "形式が正しくありません。"
	case "unknown timezone":
		return "不明なタイムゾーンです。"
	case "must select at least one weekday":
		return "曜日を 1 つ以上選択してください。"
	default:
		if strings.HasPrefix(message, "must be one of ") {
			return "次のいずれかを指定してください: " + strings.TrimPrefix(message, "must be one of ")
		}
		if strings.HasPrefix(message, "must be at least ") {
			return strings.TrimPrefix(message, "must be at least ") + " 以上の値を指定してください。"
		}
		if strings.HasPrefix(message, "must be at most ") {
			return strings.TrimPrefix(message, "must be at most ") + " 以下の値を指定してください。"
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
