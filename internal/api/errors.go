package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPastDate:
		return http.StatusUnprocessableEntity
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to its status and machine code.
// Unclassified errors become 500s; their text is kept for the request log
// and not sent to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusForKind(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		if rw, ok := w.(*responseWriter); ok {
			rw.err = err
		}
		writeError(w, status, "internal_error", "internal server error")
		return
	}
	writeError(w, status, apperr.CodeOf(err), err.Error())
}
