package api

import (
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func parseSlotWindows(w http.ResponseWriter, slots []SlotRequest) ([]schedule.SlotWindow, bool) {
	out := make([]schedule.SlotWindow, 0, len(slots))
	for _, s := range slots {
		start, err := schedule.ParseTimeOfDay(s.StartTime)
		if err != nil {
			writeServiceError(w, err)
			return nil, false
		}
		end, err := schedule.ParseTimeOfDay(s.EndTime)
		if err != nil {
			writeServiceError(w, err)
			return nil, false
		}
		out = append(out, schedule.SlotWindow{Start: start, End: end})
	}
	return out, true
}

func createScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}

		var req CreateScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		weekday, err := schedule.ParseWeekday(req.Weekday)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		slots, ok := parseSlotWindows(w, req.Slots)
		if !ok {
			return
		}

		sched, err := svc.Create(r.Context(), schedule.CreateInput{
			DoctorID: doctorID,
			Weekday:  weekday,
			IsClosed: req.IsClosed,
			Slots:    slots,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toScheduleResponse(sched))
	}
}

func listSchedulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}

		list, err := svc.ListForDoctor(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]ScheduleResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toScheduleResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		sched, err := svc.Get(r.Context(), doctorID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func updateScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorFromActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		upd := schedule.ScheduleUpdate{IsClosed: req.IsClosed}
		if req.Slots != nil {
			if upd.Slots, ok = parseSlotWindows(w, req.Slots); !ok {
				return
			}
		}

		sched, err := svc.Update(r.Context(), doctorID, id, upd)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func deleteScheduleHandler(svc *schedule.Service) http.HandlerFunc {
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
