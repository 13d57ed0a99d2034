package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// WeeklySchedule is a doctor's recurring availability for one weekday.
type WeeklySchedule struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   Weekday
	IsClosed  bool
	Slots     []Slot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one bookable window of a schedule. Slots carry no booking state.
type Slot struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	DoctorID   uuid.UUID
	Weekday    Weekday
	Start      TimeOfDay
	End        TimeOfDay
}

func (s Slot) Window() SlotWindow {
	return SlotWindow{Start: s.Start, End: s.End}
}

// ScheduleUpdate describes a partial schedule update. A non-nil Slots
// replaces the whole slot set; there is no per-slot patching.
type ScheduleUpdate struct {
	IsClosed *bool
	Slots    []SlotWindow
}

// SortSlots orders slots by start time.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start < slots[j].Start
	})
}
