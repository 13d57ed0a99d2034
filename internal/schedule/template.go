package schedule

import "github.com/google/uuid"

// ClinicWeek is the default weekly template used for seeding: weekdays
// open 09:00-12:00 and 13:00-17:00 in 30 minute slots.
func ClinicWeek() map[Weekday][]SlotWindow {
	day := append(
		SplitWindow(MustTimeOfDay("09:00"), MustTimeOfDay("12:00"), 30),
		SplitWindow(MustTimeOfDay("13:00"), MustTimeOfDay("17:00"), 30)...,
	)
	week := make(map[Weekday][]SlotWindow)
	for _, wd := range []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday} {
		week[wd] = day
	}
	return week
}

// WeekFromTemplate builds one schedule per weekday for doctorID. Weekdays
// missing from week are created closed.
func WeekFromTemplate(doctorID uuid.UUID, week map[Weekday][]SlotWindow) []*WeeklySchedule {
	out := make([]*WeeklySchedule, 0, len(weekdays))
	for _, wd := range weekdays {
		sched := &WeeklySchedule{
			ID:       uuid.New(),
			DoctorID: doctorID,
			Weekday:  wd,
		}
		windows, open := week[wd]
		sched.IsClosed = !open
		for _, w := range windows {
			sched.Slots = append(sched.Slots, Slot{
				ScheduleID: sched.ID,
				DoctorID:   doctorID,
				Weekday:    wd,
				Start:      w.Start,
				End:        w.End,
			})
		}
		out = append(out, sched)
	}
	return out
}
