package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

var (
	ErrInvalidWeekday      = apperr.New(apperr.KindValidation, "invalid_weekday", "invalid weekday")
	ErrInvalidTime         = apperr.New(apperr.KindValidation, "invalid_time", "invalid time of day")
	ErrInvalidSlot         = apperr.New(apperr.KindValidation, "invalid_slot", "invalid slot")
	ErrOverlappingSlots    = apperr.New(apperr.KindValidation, "overlapping_slots", "slots overlap")
	ErrDoctorNotFound      = apperr.New(apperr.KindNotFound, "doctor_not_found", "doctor not found")
	ErrScheduleNotFound    = apperr.New(apperr.KindNotFound, "schedule_not_found", "schedule not found")
	ErrSlotNotFound        = apperr.New(apperr.KindNotFound, "slot_not_found", "slot not found")
	ErrScheduleExists      = apperr.New(apperr.KindConflict, "schedule_exists", "schedule already exists for this weekday")
	ErrScheduleHasBookings = apperr.New(apperr.KindConflict, "schedule_has_bookings", "schedule has upcoming scheduled appointments")
	ErrScheduleInUse       = apperr.New(apperr.KindConflict, "schedule_in_use", "schedule slots are referenced by appointments")
	ErrForbidden           = apperr.New(apperr.KindAuthorization, "schedule_forbidden", "schedule belongs to a different doctor")
)

// Repository persists weekly schedules and their slots.
type Repository interface {
	// CreateSchedule inserts the schedule and its slots atomically.
	// Returns ErrScheduleExists when (doctor, weekday) is taken.
	CreateSchedule(ctx context.Context, s *WeeklySchedule) (*WeeklySchedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error)
	GetScheduleForDay(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*WeeklySchedule, error)
	ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]WeeklySchedule, error)

	// UpdateSchedule applies upd in one transaction. Replacing slots or
	// closing the day fails with ErrScheduleHasBookings while SCHEDULED
	// appointments dated on or after today reference the current slots.
	UpdateSchedule(ctx context.Context, id uuid.UUID, upd ScheduleUpdate, today time.Time) (*WeeklySchedule, error)

	// DeleteSchedule removes the schedule and cascades to its slots.
	DeleteSchedule(ctx context.Context, id uuid.UUID, today time.Time) error

	// GetSlot returns an active slot. Retired slots are not found.
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
}
