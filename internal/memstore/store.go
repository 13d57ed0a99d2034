// Package memstore is an in-process implementation of the schedule and
// appointment repositories. It backs STORAGE_DRIVER=memory and the
// service-level tests, and enforces the same keys and references the
// Postgres schema does.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type slotRecord struct {
	slot    schedule.Slot
	retired bool
}

type Store struct {
	mu           sync.RWMutex
	doctors      map[uuid.UUID]appointment.Doctor
	patients     map[uuid.UUID]appointment.Patient
	schedules    map[uuid.UUID]schedule.WeeklySchedule // Slots left empty
	slots        map[uuid.UUID]*slotRecord
	slotOrder    map[uuid.UUID][]uuid.UUID // schedule id -> slot ids, insertion order
	appointments map[uuid.UUID]appointment.Appointment
	events       []appointment.EventLog
	now          func() time.Time
}

func New() *Store {
	return &Store{
		doctors:      make(map[uuid.UUID]appointment.Doctor),
		patients:     make(map[uuid.UUID]appointment.Patient),
		schedules:    make(map[uuid.UUID]schedule.WeeklySchedule),
		slots:        make(map[uuid.UUID]*slotRecord),
		slotOrder:    make(map[uuid.UUID][]uuid.UUID),
		appointments: make(map[uuid.UUID]appointment.Appointment),
		now:          time.Now,
	}
}

// AddDoctor registers a doctor. A zero ID is assigned.
func (s *Store) AddDoctor(d appointment.Doctor) appointment.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.doctors[d.ID] = d
	return d
}

// AddPatient registers a patient. A zero ID is assigned.
func (s *Store) AddPatient(p appointment.Patient) appointment.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.patients[p.ID] = p
	return p
}

// UpdatePatient replaces a patient's details. Appointment snapshots are
// left untouched.
func (s *Store) UpdatePatient(p appointment.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.patients[p.ID]
	if !ok {
		return appointment.ErrPatientNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.now()
	s.patients[p.ID] = p
	return nil
}

// Events returns a copy of the recorded event log.
func (s *Store) Events() []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]appointment.EventLog(nil), s.events...)
}

// Schedule repository

func (s *Store) activeSlots(scheduleID uuid.UUID) []schedule.Slot {
	var out []schedule.Slot
	for _, id := range s.slotOrder[scheduleID] {
		if rec := s.slots[id]; rec != nil && !rec.retired {
			out = append(out, rec.slot)
		}
	}
	schedule.SortSlots(out)
	return out
}

func (s *Store) hydrate(sched schedule.WeeklySchedule) *schedule.WeeklySchedule {
	sched.Slots = s.activeSlots(sched.ID)
	return &sched
}

func (s *Store) addSlots(sched schedule.WeeklySchedule, slots []schedule.SlotWindow) {
	for _, w := range slots {
		id := uuid.New()
		s.slots[id] = &slotRecord{slot: schedule.Slot{
			ID:         id,
			ScheduleID: sched.ID,
			DoctorID:   sched.DoctorID,
			Weekday:    sched.Weekday,
			Start:      w.Start,
			End:        w.End,
		}}
		s.slotOrder[sched.ID] = append(s.slotOrder[sched.ID], id)
	}
}

func (s *Store) upcomingBookings(scheduleID uuid.UUID, today time.Time) int {
	n := 0
	for _, a := range s.appointments {
		rec := s.slots[a.SlotID]
		if rec == nil || rec.retired || rec.slot.ScheduleID != scheduleID {
			continue
		}
		if a.Status == appointment.StatusScheduled && !a.Date.Before(today) {
			n++
		}
	}
	return n
}

func (s *Store) CreateSchedule(_ context.Context, sched *schedule.WeeklySchedule) (*schedule.WeeklySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doctors[sched.DoctorID]; !ok {
		return nil, schedule.ErrDoctorNotFound
	}
	for _, existing := range s.schedules {
		if existing.DoctorID == sched.DoctorID && existing.Weekday == sched.Weekday {
			return nil, schedule.ErrScheduleExists
		}
	}

	record := *sched
	record.Slots = nil
	now := s.now()
	record.CreatedAt, record.UpdatedAt = now, now
	s.schedules[record.ID] = record

	windows := make([]schedule.SlotWindow, 0, len(sched.Slots))
	for _, sl := range sched.Slots {
		windows = append(windows, sl.Window())
	}
	s.addSlots(record, windows)

	return s.hydrate(record), nil
}

func (s *Store) GetSchedule(_ context.Context, id uuid.UUID) (*schedule.WeeklySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	return s.hydrate(sched), nil
}

func (s *Store) GetScheduleForDay(_ context.Context, doctorID uuid.UUID, weekday schedule.Weekday) (*schedule.WeeklySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sched := range s.schedules {
		if sched.DoctorID == doctorID && sched.Weekday == weekday {
			return s.hydrate(sched), nil
		}
	}
	return nil, schedule.ErrScheduleNotFound
}

func (s *Store) ListSchedules(_ context.Context, doctorID uuid.UUID) ([]schedule.WeeklySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schedule.WeeklySchedule
	for _, sched := range s.schedules {
		if sched.DoctorID == doctorID {
			out = append(out, *s.hydrate(sched))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Weekday.Index() < out[j].Weekday.Index()
	})
	return out, nil
}

func (s *Store) UpdateSchedule(_ context.Context, id uuid.UUID, upd schedule.ScheduleUpdate, today time.Time) (*schedule.WeeklySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}

	closing := upd.IsClosed != nil && *upd.IsClosed && !sched.IsClosed
	if upd.Slots != nil || closing {
		if n := s.upcomingBookings(id, today); n > 0 {
			return nil, fmt.Errorf("%w: %d upcoming", schedule.ErrScheduleHasBookings, n)
		}
	}

	if upd.Slots != nil {
		for _, slotID := range s.slotOrder[id] {
			if rec := s.slots[slotID]; rec != nil {
				rec.retired = true
			}
		}
		s.addSlots(sched, upd.Slots)
	}
	if upd.IsClosed != nil {
		sched.IsClosed = *upd.IsClosed
	}
	sched.UpdatedAt = s.now()
	s.schedules[id] = sched

	return s.hydrate(sched), nil
}

func (s *Store) DeleteSchedule(_ context.Context, id uuid.UUID, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return schedule.ErrScheduleNotFound
	}
	if n := s.upcomingBookings(id, today); n > 0 {
		return fmt.Errorf("%w: %d upcoming", schedule.ErrScheduleHasBookings, n)
	}

	// appointments.slot_id is ON DELETE RESTRICT
	for _, a := range s.appointments {
		if rec := s.slots[a.SlotID]; rec != nil && rec.slot.ScheduleID == id {
			return schedule.ErrScheduleInUse
		}
	}

	for _, slotID := range s.slotOrder[id] {
		delete(s.slots, slotID)
	}
	delete(s.slotOrder, id)
	delete(s.schedules, id)
	return nil
}

func (s *Store) GetSlot(_ context.Context, id uuid.UUID) (*schedule.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.slots[id]
	if !ok || rec.retired {
		return nil, schedule.ErrSlotNotFound
	}
	slot := rec.slot
	return &slot, nil
}

// Appointment repository

func (s *Store) GetDoctorByID(_ context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return &d, nil
}

func (s *Store) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func inDay(d, start, end time.Time) bool {
	return !d.Before(start) && d.Before(end)
}

func (s *Store) FindScheduled(_ context.Context, doctorID, slotID uuid.UUID, dayStart, dayEnd time.Time, excludeID uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.appointments {
		if a.ID == excludeID || a.Status != appointment.StatusScheduled {
			continue
		}
		if a.DoctorID == doctorID && a.SlotID == slotID && inDay(a.Date, dayStart, dayEnd) {
			found := a
			return &found, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *Store) ListScheduledForDay(_ context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Status == appointment.StatusScheduled && inDay(a.Date, dayStart, dayEnd) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.DoctorID != f.DoctorID {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if f.Offset >= len(out) {
		return []appointment.Appointment{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// checkTriple mirrors the partial unique index on SCHEDULED appointments.
func (s *Store) checkTriple(a appointment.Appointment) error {
	if a.Status != appointment.StatusScheduled {
		return nil
	}
	for _, other := range s.appointments {
		if other.ID == a.ID || other.Status != appointment.StatusScheduled {
			continue
		}
		if other.DoctorID == a.DoctorID && other.SlotID == a.SlotID && other.Date.Equal(a.Date) {
			return appointment.ErrSlotAlreadyBooked
		}
	}
	return nil
}

func (s *Store) checkActiveSlot(a appointment.Appointment) error {
	rec, ok := s.slots[a.SlotID]
	if !ok || rec.retired || rec.slot.DoctorID != a.DoctorID {
		return schedule.ErrSlotNotFound
	}
	return nil
}

func (s *Store) InsertAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[a.PatientID]; !ok {
		return nil, appointment.ErrPatientNotFound
	}
	if _, ok := s.appointments[a.ID]; ok {
		return nil, fmt.Errorf("appointment %s already exists", a.ID)
	}
	if err := s.checkActiveSlot(*a); err != nil {
		return nil, err
	}
	if err := s.checkTriple(*a); err != nil {
		return nil, err
	}

	created := *a
	now := s.now()
	created.CreatedAt, created.UpdatedAt = now, now
	s.appointments[created.ID] = created
	return &created, nil
}

func (s *Store) UpdateAppointment(_ context.Context, a *appointment.Appointment, from appointment.AppointmentStatus, rescheduled bool) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appointments[a.ID]
	if !ok || current.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}

	next := current
	next.SlotID = a.SlotID
	next.Date = a.Date
	next.Status = a.Status
	next.Reason = a.Reason
	next.Notes = a.Notes

	if rescheduled && next.Status == appointment.StatusScheduled {
		if err := s.checkActiveSlot(next); err != nil {
			return nil, err
		}
	} else if _, ok := s.slots[next.SlotID]; !ok {
		return nil, schedule.ErrSlotNotFound
	}
	if err := s.checkTriple(next); err != nil {
		return nil, err
	}

	next.UpdatedAt = s.now()
	s.appointments[next.ID] = next
	return &next, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to appointment.AppointmentStatus) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	if err := s.checkTriple(a); err != nil {
		return nil, err
	}
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	return &a, nil
}

func (s *Store) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(s.appointments, id)
	return nil
}

func (s *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}
