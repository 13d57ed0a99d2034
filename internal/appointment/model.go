package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. COMPLETED and
// CANCELLED are terminal; rebooking creates a new appointment.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == StatusScheduled && (next == StatusCompleted || next == StatusCancelled)
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment books one slot on one calendar date. Date is a day value
// (midnight UTC, see schedule.DayOf); the time of day comes from the slot.
// The Patient* fields are a snapshot taken at booking time.
type Appointment struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	SlotID       uuid.UUID
	Date         time.Time
	Status       AppointmentStatus
	Reason       *string
	Notes        *string
	PatientName  string
	PatientEmail *string
	PatientPhone *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Triple is the (doctor, slot, day) key at most one SCHEDULED appointment may hold.
type Triple struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
	Date     time.Time
}

func (a *Appointment) Triple() Triple {
	return Triple{DoctorID: a.DoctorID, SlotID: a.SlotID, Date: a.Date}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// SlotAvailability is one slot of a day classified as free or booked.
type SlotAvailability struct {
	SlotID        uuid.UUID
	Start         schedule.TimeOfDay
	End           schedule.TimeOfDay
	Available     bool
	AppointmentID *uuid.UUID
	PatientName   string
}

// DayAvailability is the resolver's answer for one doctor and date.
type DayAvailability struct {
	DoctorID   uuid.UUID
	Date       time.Time
	Weekday    schedule.Weekday
	TotalSlots int
	Available  []SlotAvailability
	Booked     []SlotAvailability
}

// AlternativeSlot is a free slot on a concrete date.
type AlternativeSlot struct {
	Date    time.Time
	Weekday schedule.Weekday
	SlotID  uuid.UUID
	Start   schedule.TimeOfDay
	End     schedule.TimeOfDay
}

// ListFilter narrows a doctor's appointment listing. Zero values mean unbounded.
type ListFilter struct {
	DoctorID uuid.UUID
	From     time.Time
	To       time.Time
	Status   AppointmentStatus
	Limit    int
	Offset   int
}
