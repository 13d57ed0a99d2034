package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Service manages doctors' weekly schedules. Every mutating call is
// scoped to the acting doctor.
type Service struct {
	repo   Repository
	logger *logging.Logger
	loc    *time.Location
	now    func() time.Time
}

type Options struct {
	Logger   *logging.Logger
	Location *time.Location
	Now      func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:   repo,
		logger: opts.Logger,
		loc:    opts.Location,
		now:    opts.Now,
	}
}

// CreateInput is a new schedule for one weekday.
type CreateInput struct {
	DoctorID uuid.UUID
	Weekday  Weekday
	IsClosed bool
	Slots    []SlotWindow
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*WeeklySchedule, error) {
	if !in.Weekday.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, in.Weekday)
	}
	if err := ValidateSlots(in.Slots); err != nil {
		return nil, err
	}

	sched := &WeeklySchedule{
		ID:       uuid.New(),
		DoctorID: in.DoctorID,
		Weekday:  in.Weekday,
		IsClosed: in.IsClosed,
	}
	for _, w := range in.Slots {
		sched.Slots = append(sched.Slots, Slot{
			ScheduleID: sched.ID,
			DoctorID:   in.DoctorID,
			Weekday:    in.Weekday,
			Start:      w.Start,
			End:        w.End,
		})
	}

	created, err := s.repo.CreateSchedule(ctx, sched)
	if err != nil {
		if errors.Is(err, ErrScheduleExists) || errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.logger.Info("schedule created",
		"schedule_id", created.ID,
		"doctor_id", created.DoctorID,
		"weekday", created.Weekday,
		"slots", len(created.Slots),
	)
	return created, nil
}

// Get returns a schedule owned by doctorID.
func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*WeeklySchedule, error) {
	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.DoctorID != doctorID {
		return nil, ErrForbidden
	}
	return sched, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]WeeklySchedule, error) {
	list, err := s.repo.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return list, nil
}

// Update changes the closed flag and/or replaces the slot set wholesale.
// Old slot ids do not survive a replacement.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, upd ScheduleUpdate) (*WeeklySchedule, error) {
	if _, err := s.Get(ctx, doctorID, id); err != nil {
		return nil, err
	}
	if upd.Slots != nil {
		if err := ValidateSlots(upd.Slots); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateSchedule(ctx, id, upd, s.today())
	if err != nil {
		return nil, err
	}

	s.logger.Info("schedule updated",
		"schedule_id", id,
		"doctor_id", doctorID,
		"slots_replaced", upd.Slots != nil,
		"is_closed", updated.IsClosed,
	)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	if _, err := s.Get(ctx, doctorID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteSchedule(ctx, id, s.today()); err != nil {
		return err
	}
	s.logger.Info("schedule deleted", "schedule_id", id, "doctor_id", doctorID)
	return nil
}

func (s *Service) today() time.Time {
	return DayOf(s.now(), s.loc)
}
