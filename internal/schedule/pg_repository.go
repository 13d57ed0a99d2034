package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func toPGTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func scanSchedule(row pgx.Row) (*WeeklySchedule, error) {
	var s WeeklySchedule

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Weekday,
		&s.IsClosed,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var (
		s          Slot
		start, end pgtype.Time
	)

	err := row.Scan(
		&s.ID,
		&s.ScheduleID,
		&s.DoctorID,
		&s.Weekday,
		&start,
		&end,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Start = fromPGTime(start)
	s.End = fromPGTime(end)
	return &s, nil
}

const selectSchedule = `
	SELECT id, doctor_id, weekday, is_closed, created_at, updated_at
	FROM weekly_schedules
`

const selectSlot = `
	SELECT s.id, s.schedule_id, w.doctor_id, w.weekday, s.start_time, s.end_time
	FROM schedule_slots s
	JOIN weekly_schedules w ON w.id = s.schedule_id
`

// countUpcomingBookings counts SCHEDULED appointments dated on or after today
// that reference an active slot of the schedule.
const countUpcomingBookings = `
	SELECT COUNT(*)
	FROM appointments a
	JOIN schedule_slots s ON s.id = a.slot_id
	WHERE s.schedule_id = $1
	  AND s.retired_at IS NULL
	  AND a.status = 'SCHEDULED'
	  AND a.appointment_date >= $2
`

func (r *PgRepository) loadSlots(ctx context.Context, q db.Querier, scheduleID uuid.UUID) ([]Slot, error) {
	rows, err := q.Query(ctx, selectSlot+`
		WHERE s.schedule_id = $1 AND s.retired_at IS NULL
		ORDER BY s.start_time
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortSlots(slots)
	return slots, nil
}

func insertSlots(ctx context.Context, tx pgx.Tx, sched *WeeklySchedule, windows []SlotWindow) ([]Slot, error) {
	slots := make([]Slot, 0, len(windows))
	for _, w := range windows {
		slot := Slot{
			ID:         uuid.New(),
			ScheduleID: sched.ID,
			DoctorID:   sched.DoctorID,
			Weekday:    sched.Weekday,
			Start:      w.Start,
			End:        w.End,
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_slots (id, schedule_id, start_time, end_time, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, slot.ID, slot.ScheduleID, toPGTime(slot.Start), toPGTime(slot.End))
		if err != nil {
			return nil, fmt.Errorf("insert slot %s: %w", w, err)
		}
		slots = append(slots, slot)
	}
	SortSlots(slots)
	return slots, nil
}

// lockAndCountBookings row-locks the active slots so concurrent bookings
// (which take FOR SHARE on their slot) serialize behind this transaction.
func lockAndCountBookings(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID, today time.Time) (int64, error) {
	if _, err := tx.Exec(ctx, `
		SELECT id FROM schedule_slots
		WHERE schedule_id = $1 AND retired_at IS NULL
		FOR UPDATE
	`, scheduleID); err != nil {
		return 0, fmt.Errorf("lock slots: %w", err)
	}

	var n int64
	if err := tx.QueryRow(ctx, countUpcomingBookings, scheduleID, today).Scan(&n); err != nil {
		return 0, fmt.Errorf("count upcoming bookings: %w", err)
	}
	return n, nil
}

// Interface methods

func (r *PgRepository) CreateSchedule(ctx context.Context, s *WeeklySchedule) (*WeeklySchedule, error) {
	windows := make([]SlotWindow, 0, len(s.Slots))
	for _, sl := range s.Slots {
		windows = append(windows, sl.Window())
	}

	var created *WeeklySchedule
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO weekly_schedules (id, doctor_id, weekday, is_closed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			RETURNING id, doctor_id, weekday, is_closed, created_at, updated_at
		`, s.ID, s.DoctorID, s.Weekday, s.IsClosed)

		sched, err := scanSchedule(row)
		if err != nil {
			switch {
			case db.IsUniqueViolation(err):
				return ErrScheduleExists
			case db.IsForeignKeyViolation(err):
				return ErrDoctorNotFound
			}
			return fmt.Errorf("insert schedule: %w", err)
		}

		sched.Slots, err = insertSlots(ctx, tx, sched, windows)
		if err != nil {
			return err
		}
		created = sched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	sched, err := scanSchedule(r.db.QueryRow(ctx, selectSchedule+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if sched.Slots, err = r.loadSlots(ctx, r.db, sched.ID); err != nil {
		return nil, err
	}
	return sched, nil
}

func (r *PgRepository) GetScheduleForDay(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*WeeklySchedule, error) {
	sched, err := scanSchedule(r.db.QueryRow(ctx, selectSchedule+` WHERE doctor_id = $1 AND weekday = $2`, doctorID, weekday))
	if err != nil {
		return nil, err
	}
	if sched.Slots, err = r.loadSlots(ctx, r.db, sched.ID); err != nil {
		return nil, err
	}
	return sched, nil
}

func (r *PgRepository) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]WeeklySchedule, error) {
	rows, err := r.db.Query(ctx, selectSchedule+` WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	var result []WeeklySchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if result[i].Slots, err = r.loadSlots(ctx, r.db, result[i].ID); err != nil {
			return nil, err
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Weekday.Index() < result[j].Weekday.Index()
	})
	return result, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, upd ScheduleUpdate, today time.Time) (*WeeklySchedule, error) {
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanSchedule(tx.QueryRow(ctx, selectSchedule+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		closing := upd.IsClosed != nil && *upd.IsClosed && !current.IsClosed
		if upd.Slots != nil || closing {
			n, err := lockAndCountBookings(ctx, tx, id, today)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %d upcoming", ErrScheduleHasBookings, n)
			}
		}

		if upd.Slots != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE schedule_slots
				SET retired_at = now()
				WHERE schedule_id = $1 AND retired_at IS NULL
			`, id); err != nil {
				return fmt.Errorf("retire slots: %w", err)
			}
			if _, err := insertSlots(ctx, tx, current, upd.Slots); err != nil {
				return err
			}
		}

		isClosed := current.IsClosed
		if upd.IsClosed != nil {
			isClosed = *upd.IsClosed
		}
		if _, err := tx.Exec(ctx, `
			UPDATE weekly_schedules
			SET is_closed = $2,
			    updated_at = now()
			WHERE id = $1
		`, id, isClosed); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetSchedule(ctx, id)
}

func (r *PgRepository) DeleteSchedule(ctx context.Context, id uuid.UUID, today time.Time) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := scanSchedule(tx.QueryRow(ctx, selectSchedule+` WHERE id = $1 FOR UPDATE`, id)); err != nil {
			return err
		}

		n, err := lockAndCountBookings(ctx, tx, id, today)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d upcoming", ErrScheduleHasBookings, n)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM weekly_schedules WHERE id = $1`, id); err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrScheduleInUse
			}
			return fmt.Errorf("delete schedule: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return scanSlot(r.db.QueryRow(ctx, selectSlot+` WHERE s.id = $1 AND s.retired_at IS NULL`, id))
}
