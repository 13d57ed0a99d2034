package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const (
	patientForeignKey = "appointments_patient_id_fkey"
	doctorForeignKey  = "appointments_doctor_id_fkey"
)

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotID,
		&a.Date,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.AsDay(a.Date)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const appointmentColumns = `
	id, doctor_id, patient_id, slot_id, appointment_date, status, reason, notes,
	patient_name, patient_email, patient_phone, created_at, updated_at
`

// lockActiveSlot takes a share lock on the slot row so a concurrent schedule
// update (which locks slots FOR UPDATE) cannot retire it under us.
func lockActiveSlot(ctx context.Context, tx pgx.Tx, slotID, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT s.id
		FROM schedule_slots s
		JOIN weekly_schedules w ON w.id = s.schedule_id
		WHERE s.id = $1 AND w.doctor_id = $2 AND s.retired_at IS NULL
		FOR SHARE OF s
	`, slotID, doctorID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.ErrSlotNotFound
		}
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

func translateWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrSlotAlreadyBooked
	case db.IsForeignKeyViolationOn(err, patientForeignKey):
		return ErrPatientNotFound
	case db.IsForeignKeyViolationOn(err, doctorForeignKey):
		return ErrDoctorNotFound
	case db.IsForeignKeyViolation(err):
		return schedule.ErrSlotNotFound
	}
	return err
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindScheduled(ctx context.Context, doctorID, slotID uuid.UUID, dayStart, dayEnd time.Time, excludeID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_id = $2
		  AND appointment_date >= $3
		  AND appointment_date < $4
		  AND id <> $5
		  AND status = 'SCHEDULED'
		LIMIT 1
	`, doctorID, slotID, dayStart, dayEnd, excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) ListScheduledForDay(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date >= $2
		  AND appointment_date < $3
		  AND status = 'SCHEDULED'
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list scheduled appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where = []string{"doctor_id = $1"}
		args  = []any{f.DoctorID}
	)
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(`
		ORDER BY appointment_date, created_at
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	var created *Appointment
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockActiveSlot(ctx, tx, a.SlotID, a.DoctorID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (
				id, doctor_id, patient_id, slot_id, appointment_date, status, reason, notes,
				patient_name, patient_email, patient_phone, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
			RETURNING `+appointmentColumns,
			a.ID, a.DoctorID, a.PatientID, a.SlotID, a.Date, a.Status, a.Reason, a.Notes,
			a.PatientName, a.PatientEmail, a.PatientPhone)

		appt, err := scanAppointment(row)
		if err != nil {
			return translateWriteError(err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus, rescheduled bool) (*Appointment, error) {
	var updated *Appointment
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if rescheduled && a.Status == StatusScheduled {
			if err := lockActiveSlot(ctx, tx, a.SlotID, a.DoctorID); err != nil {
				return err
			}
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET slot_id = $2,
			    appointment_date = $3,
			    status = $4,
			    reason = $5,
			    notes = $6,
			    updated_at = now()
			WHERE id = $1 AND status = $7
			RETURNING `+appointmentColumns,
			a.ID, a.SlotID, a.Date, a.Status, a.Reason, a.Notes, from)

		appt, err := scanAppointment(row)
		if err != nil {
			return translateWriteError(err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}
