package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// The agent path acts on behalf of patients for a doctor named in the URL.
// It can book, reschedule and cancel but never hard-delete.

func doctorFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return uuidParam(w, r, "doctor_id")
}

// writeAgentError answers booking conflicts with a fresh alternative-slot
// search starting at from, so the caller can offer another time at once.
func writeAgentError(w http.ResponseWriter, r *http.Request, svc *appointment.Service, logger *logging.Logger, doctorID uuid.UUID, from time.Time, err error) {
	if apperr.KindOf(err) != apperr.KindConflict {
		writeServiceError(w, err)
		return
	}

	resp := ConflictResponse{
		ErrorResponse: ErrorResponse{Error: apperr.CodeOf(err), Details: err.Error()},
		Alternatives:  []AlternativeResponse{},
	}
	alts, altErr := svc.SuggestAlternatives(r.Context(), doctorID, from, 0, 0)
	if altErr != nil {
		logger.Warn("alternative search after conflict failed",
			"doctor_id", doctorID,
			"request_id", GetRequestID(r.Context()),
			"error", altErr,
		)
	} else {
		resp.Alternatives = toAlternatives(alts)
	}
	writeJSON(w, http.StatusConflict, resp)
}

func agentCreateAppointmentHandler(svc *appointment.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromPath(w, r)
		if !ok {
			return
		}
		in, ok := parseCreateAppointment(w, r, svc, doctorID)
		if !ok {
			return
		}

		appt, err := svc.Create(r.Context(), in)
		if err != nil {
			writeAgentError(w, r, svc, logger, doctorID, in.Date, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func agentUpdateAppointmentHandler(svc *appointment.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromPath(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		in, ok := parseUpdateAppointment(w, r, svc, false)
		if !ok {
			return
		}

		appt, err := svc.Update(r.Context(), doctorID, id, in)
		if err != nil {
			var from time.Time
			if in.Date != nil {
				from = *in.Date
			}
			writeAgentError(w, r, svc, logger, doctorID, from, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func agentCancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromPath(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), doctorID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
