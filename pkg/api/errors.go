package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// errorBody is the wire error shape: {"error": {code, message, retryable?}}.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// renderError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 with the detail kept out of the body.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrUnsupportedChain):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, types.ErrWorkflowNotFound),
		errors.Is(err, types.ErrJobNotFound),
		errors.Is(err, types.ErrAddressNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case types.IsInvalidTransition(err):
		writeError(w, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error())
	case errors.Is(err, types.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Code:      "CONCURRENT_MODIFICATION",
			Message:   err.Error(),
			Retryable: true,
		}})
	case errors.Is(err, types.ErrActiveJobExists):
		writeError(w, http.StatusConflict, "ACTIVE_JOB_EXISTS", err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
