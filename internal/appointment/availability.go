package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// ResolveAvailability classifies every slot of the doctor's schedule for
// date as available or booked. A missing or closed schedule yields zero
// totals, not an error. A non-nil slotID narrows the result to that slot.
func (s *Service) ResolveAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID *uuid.UUID) (*DayAvailability, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.resolve_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", doctorID.String()),
		attribute.String("clinic.date", date.Format(schedule.DateLayout)),
	)

	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	day, err := s.resolveDay(ctx, doctorID, schedule.AsDay(date))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if slotID != nil {
		day.Available = filterSlot(day.Available, *slotID)
		day.Booked = filterSlot(day.Booked, *slotID)
		day.TotalSlots = len(day.Available) + len(day.Booked)
	}
	return day, nil
}

func (s *Service) resolveDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (*DayAvailability, error) {
	weekday := schedule.WeekdayOf(day)
	result := &DayAvailability{
		DoctorID:  doctorID,
		Date:      day,
		Weekday:   weekday,
		Available: []SlotAvailability{},
		Booked:    []SlotAvailability{},
	}

	sched, err := s.slots.GetScheduleForDay(ctx, doctorID, weekday)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			return result, nil
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if sched.IsClosed || len(sched.Slots) == 0 {
		return result, nil
	}

	dayStart, dayEnd := schedule.DayBounds(day)
	booked, err := s.repo.ListScheduledForDay(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	bySlot := make(map[uuid.UUID]*Appointment, len(booked))
	for i := range booked {
		bySlot[booked[i].SlotID] = &booked[i]
	}

	slots := append([]schedule.Slot(nil), sched.Slots...)
	schedule.SortSlots(slots)

	for _, sl := range slots {
		entry := SlotAvailability{SlotID: sl.ID, Start: sl.Start, End: sl.End}
		if appt, ok := bySlot[sl.ID]; ok {
			id := appt.ID
			entry.AppointmentID = &id
			entry.PatientName = appt.PatientName
			result.Booked = append(result.Booked, entry)
			continue
		}
		entry.Available = true
		result.Available = append(result.Available, entry)
	}
	result.TotalSlots = len(slots)
	return result, nil
}

// SuggestAlternatives scans up to horizonDays consecutive days starting at
// from and returns at most maxResults free slots ordered by date then start
// time. A zero from, or one before today, starts the scan today. Non-positive
// bounds fall back to the service defaults.
func (s *Service) SuggestAlternatives(ctx context.Context, doctorID uuid.UUID, from time.Time, maxResults, horizonDays int) ([]AlternativeSlot, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.suggest_alternatives")
	defer span.End()

	if maxResults <= 0 {
		maxResults = s.maxAlternatives
	}
	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}

	today := s.Today()
	start := today
	if !from.IsZero() {
		if d := schedule.AsDay(from); d.After(today) {
			start = d
		}
	}
	span.SetAttributes(
		attribute.String("clinic.doctor_id", doctorID.String()),
		attribute.String("clinic.from", start.Format(schedule.DateLayout)),
		attribute.Int("clinic.max_results", maxResults),
		attribute.Int("clinic.horizon_days", horizonDays),
	)

	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	result := make([]AlternativeSlot, 0, maxResults)
	for i := 0; i < horizonDays && len(result) < maxResults; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day, err := s.resolveDay(ctx, doctorID, start.AddDate(0, 0, i))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, sl := range day.Available {
			if len(result) == maxResults {
				break
			}
			result = append(result, AlternativeSlot{
				Date:    day.Date,
				Weekday: day.Weekday,
				SlotID:  sl.SlotID,
				Start:   sl.Start,
				End:     sl.End,
			})
		}
	}

	s.metrics.ObserveAlternatives(len(result))
	return result, nil
}

func (s *Service) ensureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	return nil
}

func filterSlot(entries []SlotAvailability, slotID uuid.UUID) []SlotAvailability {
	out := []SlotAvailability{}
	for _, e := range entries {
		if e.SlotID == slotID {
			out = append(out, e)
		}
	}
	return out
}
