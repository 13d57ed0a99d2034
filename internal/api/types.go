package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type SlotRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CreateScheduleRequest struct {
	Weekday  string        `json:"weekday"`
	IsClosed bool          `json:"is_closed"`
	Slots    []SlotRequest `json:"slots"`
}

// UpdateScheduleRequest replaces the slot set when slots is present,
// including an explicit empty list.
type UpdateScheduleRequest struct {
	IsClosed *bool         `json:"is_closed"`
	Slots    []SlotRequest `json:"slots"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

type ScheduleResponse struct {
	ID        uuid.UUID      `json:"id"`
	DoctorID  uuid.UUID      `json:"doctor_id"`
	Weekday   string         `json:"weekday"`
	IsClosed  bool           `json:"is_closed"`
	Slots     []SlotResponse `json:"slots"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type CreateAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	SlotID    string  `json:"slot_id"`
	Date      string  `json:"date"`
	Reason    *string `json:"reason"`
	Notes     *string `json:"notes"`
}

type UpdateAppointmentRequest struct {
	SlotID *string `json:"slot_id"`
	Date   *string `json:"date"`
	Status *string `json:"status"`
	Reason *string `json:"reason"`
	Notes  *string `json:"notes"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	SlotID       uuid.UUID `json:"slot_id"`
	Date         string    `json:"date"`
	Status       string    `json:"status"`
	Reason       *string   `json:"reason,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	PatientName  string    `json:"patient_name"`
	PatientEmail *string   `json:"patient_email,omitempty"`
	PatientPhone *string   `json:"patient_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type SlotAvailabilityResponse struct {
	SlotID        uuid.UUID  `json:"slot_id"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Available     bool       `json:"available"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientName   string     `json:"patient_name,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID   uuid.UUID                  `json:"doctor_id"`
	Date       string                     `json:"date"`
	Weekday    string                     `json:"weekday"`
	TotalSlots int                        `json:"total_slots"`
	Available  []SlotAvailabilityResponse `json:"available_slots"`
	Booked     []SlotAvailabilityResponse `json:"booked_slots"`
}

type AlternativeResponse struct {
	Date      string    `json:"date"`
	Weekday   string    `json:"weekday"`
	SlotID    uuid.UUID `json:"slot_id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// AlternativesResponse never lists a date before today, even for a past "from".
type AlternativesResponse struct {
	DoctorID     uuid.UUID             `json:"doctor_id"`
	Alternatives []AlternativeResponse `json:"alternatives"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConflictResponse answers an agent booking conflict with other free slots.
type ConflictResponse struct {
	ErrorResponse
	Alternatives []AlternativeResponse `json:"alternatives"`
}

// Mapping

func toScheduleResponse(s *schedule.WeeklySchedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Weekday:   string(s.Weekday),
		IsClosed:  s.IsClosed,
		Slots:     make([]SlotResponse, 0, len(s.Slots)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for _, sl := range s.Slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			ID:        sl.ID,
			StartTime: sl.Start.String(),
			EndTime:   sl.End.String(),
		})
	}
	return resp
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		PatientID:    a.PatientID,
		SlotID:       a.SlotID,
		Date:         a.Date.Format(schedule.DateLayout),
		Status:       string(a.Status),
		Reason:       a.Reason,
		Notes:        a.Notes,
		PatientName:  a.PatientName,
		PatientEmail: a.PatientEmail,
		PatientPhone: a.PatientPhone,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toSlotAvailability(entries []appointment.SlotAvailability) []SlotAvailabilityResponse {
	out := make([]SlotAvailabilityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, SlotAvailabilityResponse{
			SlotID:        e.SlotID,
			StartTime:     e.Start.String(),
			EndTime:       e.End.String(),
			Available:     e.Available,
			AppointmentID: e.AppointmentID,
			PatientName:   e.PatientName,
		})
	}
	return out
}

func toAvailabilityResponse(d *appointment.DayAvailability) AvailabilityResponse {
	return AvailabilityResponse{
		DoctorID:   d.DoctorID,
		Date:       d.Date.Format(schedule.DateLayout),
		Weekday:    string(d.Weekday),
		TotalSlots: d.TotalSlots,
		Available:  toSlotAvailability(d.Available),
		Booked:     toSlotAvailability(d.Booked),
	}
}

func toAlternatives(alts []appointment.AlternativeSlot) []AlternativeResponse {
	out := make([]AlternativeResponse, 0, len(alts))
	for _, a := range alts {
		out = append(out, AlternativeResponse{
			Date:      a.Date.Format(schedule.DateLayout),
			Weekday:   string(a.Weekday),
			SlotID:    a.SlotID,
			StartTime: a.Start.String(),
			EndTime:   a.End.String(),
		})
	}
	return out
}
