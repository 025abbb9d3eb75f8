package httpapi

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kyleking/lyre/internal/errors"
)

// ErrorBody is the JSON shape of every failed request
type ErrorBody struct {
	Error       string   `json:"error"`
	Type        string   `json:"type"`
	Entity      string   `json:"entity,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

// StatusFor maps an error's type to its HTTP status
func StatusFor(err error) int {
	switch apperrors.GetType(err) {
	case apperrors.ErrTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrTypeValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := ErrorBody{
		Error:     err.Error(),
		Type:      string(apperrors.GetType(err)),
		RequestID: RequestIDFromContext(r.Context()),
	}

	if structured, ok := apperrors.As(err); ok {
		body.Error = structured.Message
		body.Entity = structured.Entity
		body.Suggestions = structured.Suggestions
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithField("request_id", body.RequestID).ErrorWithErr("Request error", err)
		// Internal details stay in the log.
		body.Error = http.StatusText(status)
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
