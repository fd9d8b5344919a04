package worker

import (
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/analysis"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

var errNoProjectData = errors.New("worker: no project data recorded for session")

// errorBody is the error envelope for 4xx/5xx responses.
type errorBody struct {
	Error     string          `json:"error"`
	Details   string          `json:"details,omitempty"`
	Provider  models.Provider `json:"provider,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeValidationError(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:     "validation failed",
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// writeError maps pipeline errors onto the HTTP surface.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: "request failed", Details: err.Error(), Timestamp: time.Now().UTC()}

	var httpErr *provider.HTTPError
	var authErr *provider.AuthConfigError
	var transErr *session.TransitionError

	switch {
	case errors.Is(err, analysis.ErrSessionNotFound), errors.Is(err, errNoProjectData):
		body.Error = "not found"
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, quota.ErrExceeded):
		body.Error = "quota exceeded"
		writeJSON(w, http.StatusTooManyRequests, body)
	case errors.As(err, &transErr):
		body.Error = "invalid stage transition"
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, provider.ErrTimeout):
		body.Error = "provider timeout, try again"
		writeJSON(w, http.StatusInternalServerError, body)
	case errors.As(err, &authErr):
		body.Error = "provider not configured"
		body.Provider = authErr.Provider
		writeJSON(w, http.StatusInternalServerError, body)
	case errors.As(err, &httpErr):
		body.Error = "provider error"
		body.Provider = httpErr.Provider
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
