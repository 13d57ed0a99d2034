package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
)

var (
	ErrSlotAlreadyBooked       = apperr.New(apperr.KindConflict, "slot_already_booked", "slot already has a scheduled appointment on this date")
	ErrSlotBeingBooked         = apperr.New(apperr.KindConflict, "slot_being_booked", "slot is currently being booked, please retry")
	ErrSlotForbidden           = apperr.New(apperr.KindAuthorization, "slot_forbidden", "slot belongs to a different doctor")
	ErrAppointmentForbidden    = apperr.New(apperr.KindAuthorization, "appointment_forbidden", "appointment belongs to a different doctor")
	ErrWeekdayMismatch         = apperr.New(apperr.KindValidation, "weekday_mismatch", "date does not match the slot's weekday")
	ErrPastDate                = apperr.New(apperr.KindPastDate, "past_date", "appointment date is in the past")
	ErrInvalidStatus           = apperr.New(apperr.KindValidation, "invalid_status", "invalid appointment status")
	ErrInvalidStatusTransition = apperr.New(apperr.KindConflict, "invalid_status_transition", "invalid status transition")
)

var appointmentTracer = otel.Tracer("clinic.internal.appointment")

type Service struct {
	repo    Repository
	slots   SlotSource
	locker  redisclient.Locker
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	loc     *time.Location
	now     func() time.Time

	maxAlternatives int
	horizonDays     int
}

type Options struct {
	Logger          *logging.Logger
	Metrics         *metrics.BookingMetrics
	Location        *time.Location
	Now             func() time.Time
	MaxAlternatives int
	HorizonDays     int
}

func NewService(repo Repository, slots SlotSource, locker redisclient.Locker, opts Options) *Service {
	if repo == nil || slots == nil || locker == nil {
		panic("appointment: repository, slot source and locker required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAlternatives <= 0 {
		opts.MaxAlternatives = 5
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 7
	}
	return &Service{
		repo:            repo,
		slots:           slots,
		locker:          locker,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		loc:             opts.Location,
		now:             opts.Now,
		maxAlternatives: opts.MaxAlternatives,
		horizonDays:     opts.HorizonDays,
	}
}

// Location is the clinic calendar used to interpret timestamps.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today is the current calendar day in the clinic's location.
func (s *Service) Today() time.Time {
	return schedule.DayOf(s.now(), s.loc)
}

// CreateInput books SlotID on Date for PatientID. Date is a calendar day;
// any clock part is ignored.
type CreateInput struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Date      time.Time
	Reason    *string
	Notes     *string
}

// Create books a slot for a patient. The conflict check and the insert run
// under a lock on the (doctor, slot, date) triple, and the storage layer
// rejects a second SCHEDULED row for the triple regardless.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", in.DoctorID.String()),
		attribute.String("clinic.slot_id", in.SlotID.String()),
		attribute.String("clinic.date", in.Date.Format(schedule.DateLayout)),
	)

	appt, err := s.create(ctx, in)
	s.metrics.ObserveOperation("create", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	day := schedule.AsDay(in.Date)
	if _, err := s.validateTarget(ctx, in.DoctorID, in.SlotID, day); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:           uuid.New(),
		DoctorID:     in.DoctorID,
		PatientID:    patient.ID,
		SlotID:       in.SlotID,
		Date:         day,
		Status:       StatusScheduled,
		Reason:       in.Reason,
		Notes:        in.Notes,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		PatientPhone: patient.Phone,
	}

	var created *Appointment
	err = s.guard(ctx, appt.Triple(), uuid.Nil, func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.InsertAppointment(lockCtx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"slot_id":    created.SlotID.String(),
		"date":       created.Date.Format(schedule.DateLayout),
	})
	s.logger.Info("appointment created",
		"appointment_id", created.ID,
		"doctor_id", created.DoctorID,
		"slot_id", created.SlotID,
		"date", created.Date.Format(schedule.DateLayout),
	)
	return created, nil
}

// validateTarget checks that slotID is an active slot of doctorID whose
// weekday matches day, and that day is not in the past.
func (s *Service) validateTarget(ctx context.Context, doctorID, slotID uuid.UUID, day time.Time) (*schedule.Slot, error) {
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, schedule.ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.DoctorID != doctorID {
		return nil, ErrSlotForbidden
	}
	if got := schedule.WeekdayOf(day); got != slot.Weekday {
		return nil, fmt.Errorf("%w: %s is a %s, slot is on %s",
			ErrWeekdayMismatch, day.Format(schedule.DateLayout), got, slot.Weekday)
	}
	if day.Before(s.Today()) {
		return nil, fmt.Errorf("%w: %s", ErrPastDate, day.Format(schedule.DateLayout))
	}
	return slot, nil
}

// guard is the single gate in front of every write that can make a triple
// SCHEDULED. write runs only if no other SCHEDULED appointment (other than
// excludeID) holds the triple.
func (s *Service) guard(ctx context.Context, t Triple, excludeID uuid.UUID, write func(ctx context.Context) error) error {
	key := redisclient.BookingLockKey(t.DoctorID, t.SlotID, t.Date)

	err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		started := time.Now()
		defer func() {
			s.metrics.ObserveGuardLatency(time.Since(started).Seconds())
		}()

		dayStart, dayEnd := schedule.DayBounds(t.Date)
		existing, err := s.repo.FindScheduled(lockCtx, t.DoctorID, t.SlotID, dayStart, dayEnd, excludeID)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check slot booking: %w", err)
		}
		if existing != nil {
			s.metrics.ObserveConflict("guard")
			return ErrSlotAlreadyBooked
		}

		if err := write(lockCtx); err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				s.metrics.ObserveConflict("storage")
			}
			return err
		}
		return nil
	})

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.ObserveConflict("lock")
		return ErrSlotBeingBooked
	}
	return err
}

// UpdateInput is a partial appointment update. Nil fields are left as is.
type UpdateInput struct {
	SlotID *uuid.UUID
	Date   *time.Time
	Status *AppointmentStatus
	Reason *string
	Notes  *string
}

// Update reschedules and/or edits an appointment owned by doctorID.
// Moving to a new slot or date re-runs the weekday, past-date and
// conflict checks against the new triple, ignoring the appointment itself.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", doctorID.String()),
		attribute.String("clinic.appointment_id", id.String()),
	)

	appt, err := s.update(ctx, doctorID, id, in)
	s.metrics.ObserveOperation("update", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) update(ctx context.Context, doctorID, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	current, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.Reason != nil {
		next.Reason = in.Reason
	}
	if in.Notes != nil {
		next.Notes = in.Notes
	}
	if in.Status != nil && *in.Status != current.Status {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *in.Status)
		}
		if !current.Status.CanTransitionTo(*in.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, *in.Status)
		}
		next.Status = *in.Status
	}
	if in.SlotID != nil {
		next.SlotID = *in.SlotID
	}
	if in.Date != nil {
		next.Date = schedule.AsDay(*in.Date)
	}

	moved := next.SlotID != current.SlotID || !next.Date.Equal(current.Date)
	if moved && current.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, current.Status)
	}
	statusChanged := next.Status != current.Status
	from := current.Status

	write := func(ctx context.Context) error {
		updated, err := s.repo.UpdateAppointment(ctx, &next, from, moved)
		if err != nil {
			// Lost a race with a transition or a delete.
			if errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("%w: appointment is no longer %s", ErrInvalidStatusTransition, from)
			}
			return err
		}
		current = updated
		return nil
	}

	if moved {
		if _, err := s.validateTarget(ctx, doctorID, next.SlotID, next.Date); err != nil {
			return nil, err
		}
		if next.Status == StatusScheduled {
			err = s.guard(ctx, next.Triple(), next.ID, write)
		} else {
			err = write(ctx)
		}
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case moved:
		s.logEvent(ctx, current.ID, EventAppointmentRescheduled, map[string]any{
			"slot_id": current.SlotID.String(),
			"date":    current.Date.Format(schedule.DateLayout),
		})
	case statusChanged && next.Status == StatusCancelled:
		s.logEvent(ctx, current.ID, EventAppointmentCancelled, map[string]any{})
	case statusChanged && next.Status == StatusCompleted:
		s.logEvent(ctx, current.ID, EventAppointmentCompleted, map[string]any{})
	default:
		s.logEvent(ctx, current.ID, EventAppointmentUpdated, map[string]any{})
	}

	s.logger.Info("appointment updated",
		"appointment_id", current.ID,
		"doctor_id", doctorID,
		"rescheduled", moved,
		"status", current.Status,
	)
	return current, nil
}

// Cancel moves a SCHEDULED appointment to CANCELLED, freeing its slot for
// that date.
func (s *Service) Cancel(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.cancel")
	defer span.End()

	appt, err := s.transition(ctx, doctorID, id, StatusCancelled, EventAppointmentCancelled)
	s.metrics.ObserveOperation("cancel", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

// Complete moves a SCHEDULED appointment to COMPLETED.
func (s *Service) Complete(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, doctorID, id, StatusCompleted, EventAppointmentCompleted)
	s.metrics.ObserveOperation("complete", outcome(err))
	return appt, err
}

func (s *Service) transition(ctx context.Context, doctorID, id uuid.UUID, to AppointmentStatus, event string) (*Appointment, error) {
	current, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to)
	if err != nil {
		// Lost a race with another transition.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment is no longer %s", ErrInvalidStatusTransition, current.Status)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, event, map[string]any{"from": string(current.Status)})
	s.logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"doctor_id", doctorID,
		"from", current.Status,
		"to", updated.Status,
	)
	return updated, nil
}

// Delete hard-deletes an appointment. Only the doctor path exposes it.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	if _, err := s.Get(ctx, doctorID, id); err != nil {
		return err
	}
	err := s.repo.DeleteAppointment(ctx, id)
	s.metrics.ObserveOperation("delete", outcome(err))
	if err != nil {
		return err
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	s.logger.Info("appointment deleted", "appointment_id", id, "doctor_id", doctorID)
	return nil
}

// Get returns an appointment owned by doctorID.
func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrAppointmentForbidden
	}
	return appt, nil
}

// ListForDoctor lists a doctor's appointments ordered by date.
func (s *Service) ListForDoctor(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	if !f.From.IsZero() {
		f.From = schedule.AsDay(f.From)
	}
	if !f.To.IsZero() {
		f.To = schedule.AsDay(f.To)
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error("failed to insert event log",
			"event_type", eventType,
			"appointment_id", appointmentID,
			"error", err,
		)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
