package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Request helpers

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// doctorFromActor returns the authenticated doctor's id.
func doctorFromActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok || actor.Role != auth.RoleDoctor {
		writeServiceError(w, auth.ErrUnauthenticated)
		return uuid.Nil, false
	}
	return actor.ID, true
}

// dayQuery parses a YYYY-MM-DD query parameter, defaulting to today.
func dayQuery(w http.ResponseWriter, r *http.Request, name string, svc *appointment.Service) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return svc.Today(), true
	}
	day, err := schedule.ParseDay(raw, svc.Location())
	if err != nil {
		writeServiceError(w, err)
		return time.Time{}, false
	}
	return day, true
}

// lenientDayQuery parses a date query parameter; empty or unparseable
// values yield the zero time, which the search treats as today.
func lenientDayQuery(r *http.Request, name string, svc *appointment.Service) time.Time {
	day, err := schedule.ParseDay(r.URL.Query().Get(name), svc.Location())
	if err != nil {
		return time.Time{}
	}
	return day
}

func intQuery(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func optionalUUIDQuery(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func parseCreateAppointment(w http.ResponseWriter, r *http.Request, svc *appointment.Service, doctorID uuid.UUID) (appointment.CreateInput, bool) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return appointment.CreateInput{}, false
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return appointment.CreateInput{}, false
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return appointment.CreateInput{}, false
	}
	day, err := schedule.ParseDay(req.Date, svc.Location())
	if err != nil {
		writeServiceError(w, err)
		return appointment.CreateInput{}, false
	}

	return appointment.CreateInput{
		DoctorID:  doctorID,
		PatientID: patientID,
		SlotID:    slotID,
		Date:      day,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}, true
}

func parseUpdateAppointment(w http.ResponseWriter, r *http.Request, svc *appointment.Service, allowStatus bool) (appointment.UpdateInput, bool) {
	var req UpdateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return appointment.UpdateInput{}, false
	}

	in := appointment.UpdateInput{Reason: req.Reason, Notes: req.Notes}
	if req.SlotID != nil {
		slotID, err := uuid.Parse(*req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return in, false
		}
		in.SlotID = &slotID
	}
	if req.Date != nil {
		day, err := schedule.ParseDay(*req.Date, svc.Location())
		if err != nil {
			writeServiceError(w, err)
			return in, false
		}
		in.Date = &day
	}
	if req.Status != nil {
		if !allowStatus {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "status cannot be changed here; use the cancel endpoint")
			return in, false
		}
		status := appointment.AppointmentStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		in.Status = &status
	}
	return in, true
}

// Doctor appointment handlers

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		in, ok := parseCreateAppointment(w, r, svc, doctorID)
		if !ok {
			return
		}

		appt, err := svc.Create(r.Context(), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		f := appointment.ListFilter{
			DoctorID: doctorID,
			Status:   appointment.AppointmentStatus(strings.ToUpper(q.Get("status"))),
			Limit:    intQuery(r, "limit"),
			Offset:   intQuery(r, "offset"),
		}
		if raw := q.Get("from"); raw != "" {
			day, err := schedule.ParseDay(raw, svc.Location())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			f.From = day
		}
		if raw := q.Get("to"); raw != "" {
			day, err := schedule.ParseDay(raw, svc.Location())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			f.To = day
		}

		list, err := svc.ListForDoctor(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentResponse, 0, len(list)),
			Limit:        f.Limit,
			Offset:       f.Offset,
		}
		for i := range list {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), doctorID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		in, ok := parseUpdateAppointment(w, r, svc, true)
		if !ok {
			return
		}

		appt, err := svc.Update(r.Context(), doctorID, id, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
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

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), doctorID, id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func availabilityHandler(svc *appointment.Service, doctorFrom func(http.ResponseWriter, *http.Request) (uuid.UUID, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFrom(w, r)
		if !ok {
			return
		}
		day, ok := dayQuery(w, r, "date", svc)
		if !ok {
			return
		}
		slotID, ok := optionalUUIDQuery(w, r, "slot_id")
		if !ok {
			return
		}

		result, err := svc.ResolveAvailability(r.Context(), doctorID, day, slotID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(result))
	}
}

// alternativesHandler lists free slots from the "from" query date onward.
// A missing, unparseable or past from starts the scan at today.
func alternativesHandler(svc *appointment.Service, doctorFrom func(http.ResponseWriter, *http.Request) (uuid.UUID, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFrom(w, r)
		if !ok {
			return
		}

		alts, err := svc.SuggestAlternatives(r.Context(), doctorID,
			lenientDayQuery(r, "from", svc), intQuery(r, "max_results"), intQuery(r, "horizon_days"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AlternativesResponse{DoctorID: doctorID, Alternatives: toAlternatives(alts)})
	}
}
