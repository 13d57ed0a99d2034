package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrDoctorNotFound      = apperr.New(apperr.KindNotFound, "doctor_not_found", "doctor not found")
	ErrPatientNotFound     = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks: the SCHEDULED appointment holding the triple within
	// [dayStart, dayEnd), ignoring excludeID. ErrAppointmentNotFound when free.
	FindScheduled(ctx context.Context, doctorID, slotID uuid.UUID, dayStart, dayEnd time.Time, excludeID uuid.UUID) (*Appointment, error)

	// For availability: every SCHEDULED appointment of the doctor within [dayStart, dayEnd).
	ListScheduledForDay(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// Creation and updates. Both fail with ErrSlotAlreadyBooked when the
	// storage layer rejects a second SCHEDULED row for a triple, and with
	// schedule.ErrSlotNotFound when the target slot was retired meanwhile
	// (checked on insert and on a SCHEDULED reschedule only).
	// UpdateAppointment and UpdateAppointmentStatus write only while the
	// stored status is still from, and return ErrAppointmentNotFound otherwise.
	InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus, rescheduled bool) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// SlotSource is the read side of the weekly schedule store.
type SlotSource interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*schedule.Slot, error)
	GetScheduleForDay(ctx context.Context, doctorID uuid.UUID, weekday schedule.Weekday) (*schedule.WeeklySchedule, error)
}
