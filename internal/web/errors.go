package web

// errors.go turns service failures into HTTP responses.
//
// Every error goes through respondError, which:
//  1. maps the error to a status by its Failure kind and cause
//  2. maps it to a user message and code via core.MapError
//  3. logs the technical error with the request id
//  4. writes the JSON error body

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Action     string                 `json:"action,omitempty"`
	Code       string                 `json:"code"`
	Violations []core.ValidationError `json:"violations,omitempty"`
	// ID is the existing record's id on a duplicate.
	ID string `json:"id,omitempty"`
}

// badRequest marks a request the handler could not decode.
type badRequest struct {
	err error
}

func (e *badRequest) Error() string { return "bad request: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

var msgBadRequest = core.UserMessage{
	Message: "The request body is not valid JSON for this resource",
	Action:  "Check the field names and value types",
	Code:    "REQ002",
}

var msgTooLarge = core.UserMessage{
	Message: "The request body is too large",
	Action:  "Send a smaller body or raise WRITE_MAX_BODY_BYTES",
	Code:    "REQ003",
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	var bad *badRequest
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrWriterBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrReferenceInUse):
		return http.StatusConflict
	}

	f, ok := core.AsFailure(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch f.Kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindReferenceNotFound, core.KindNotFound:
		return http.StatusNotFound
	case core.KindDuplicateRecord:
		return http.StatusConflict
	case core.KindCapacityExhausted:
		return http.StatusInsufficientStorage
	}
	if f.Conflict {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// userMessage is core.MapError plus the request-level codes.
func userMessage(err error) core.UserMessage {
	var tooLarge *http.MaxBytesError
	var bad *badRequest
	switch {
	case errors.As(err, &tooLarge):
		return msgTooLarge
	case errors.As(err, &bad):
		return msgBadRequest
	}
	return core.MapError(err)
}

// respondError logs err and writes its JSON error body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := userMessage(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	body := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if f, ok := core.AsFailure(err); ok {
		body.Violations = f.Violations
		if f.Kind == core.KindDuplicateRecord {
			body.ID = f.Key
		}
	}
	writeJSON(w, status, body)
}

// writeJSON encodes v with status. Encoding errors are logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
