package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Monday 2025-03-10, 08:00 UTC.
var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*schedule.Service, *memstore.Store, uuid.UUID) {
	t.Helper()
	store := memstore.New()
	doc := store.AddDoctor(appointment.Doctor{Name: "Dr. Grey"})
	svc := schedule.NewService(store, schedule.Options{
		Logger: logging.New("error"),
		Now:    func() time.Time { return fixedNow },
	})
	return svc, store, doc.ID
}

func w(start, end string) schedule.SlotWindow {
	return schedule.SlotWindow{Start: schedule.MustTimeOfDay(start), End: schedule.MustTimeOfDay(end)}
}

func TestCreateSchedule(t *testing.T) {
	svc, _, doctorID := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, schedule.CreateInput{
		DoctorID: doctorID,
		Weekday:  schedule.Monday,
		Slots:    []schedule.SlotWindow{w("10:00", "10:30"), w("09:00", "09:30")},
	})
	require.NoError(t, err)
	require.Len(t, created.Slots, 2)
	assert.Equal(t, schedule.MustTimeOfDay("09:00"), created.Slots[0].Start, "slots are returned by start time")
	for _, sl := range created.Slots {
		assert.NotEqual(t, uuid.Nil, sl.ID)
		assert.Equal(t, doctorID, sl.DoctorID)
	}

	_, err = svc.Create(ctx, schedule.CreateInput{DoctorID: doctorID, Weekday: schedule.Monday})
	assert.ErrorIs(t, err, schedule.ErrScheduleExists)
}

func TestCreateScheduleValidation(t *testing.T) {
	svc, _, doctorID := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, schedule.CreateInput{DoctorID: doctorID, Weekday: "FUNDAY"})
	assert.ErrorIs(t, err, schedule.ErrInvalidWeekday)

	_, err = svc.Create(ctx, schedule.CreateInput{
		DoctorID: doctorID,
		Weekday:  schedule.Tuesday,
		Slots:    []schedule.SlotWindow{w("09:00", "10:00"), w("09:30", "10:30")},
	})
	assert.ErrorIs(t, err, schedule.ErrOverlappingSlots)

	_, err = svc.Create(ctx, schedule.CreateInput{DoctorID: uuid.New(), Weekday: schedule.Tuesday})
	assert.ErrorIs(t, err, schedule.ErrDoctorNotFound)
}

func TestScheduleOwnership(t *testing.T) {
	svc, store, doctorID := setup(t)
	ctx := context.Background()
	other := store.AddDoctor(appointment.Doctor{Name: "Dr. Shepherd"})

	created, err := svc.Create(ctx, schedule.CreateInput{DoctorID: doctorID, Weekday: schedule.Friday})
	require.NoError(t, err)

	_, err = svc.Get(ctx, other.ID, created.ID)
	assert.ErrorIs(t, err, schedule.ErrForbidden)

	closed := true
	_, err = svc.Update(ctx, other.ID, created.ID, schedule.ScheduleUpdate{IsClosed: &closed})
	assert.ErrorIs(t, err, schedule.ErrForbidden)

	assert.ErrorIs(t, svc.Delete(ctx, other.ID, created.ID), schedule.ErrForbidden)

	_, err = svc.Get(ctx, doctorID, uuid.New())
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

func TestListForDoctorOrdersByWeekday(t *testing.T) {
	svc, _, doctorID := setup(t)
	ctx := context.Background()

	for _, wd := range []schedule.Weekday{schedule.Friday, schedule.Monday, schedule.Wednesday} {
		_, err := svc.Create(ctx, schedule.CreateInput{DoctorID: doctorID, Weekday: wd})
		require.NoError(t, err)
	}

	list, err := svc.ListForDoctor(ctx, doctorID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, schedule.Monday, list[0].Weekday)
	assert.Equal(t, schedule.Wednesday, list[1].Weekday)
	assert.Equal(t, schedule.Friday, list[2].Weekday)
}

func TestUpdateReplacesSlots(t *testing.T) {
	svc, _, doctorID := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, schedule.CreateInput{
		DoctorID: doctorID,
		Weekday:  schedule.Monday,
		Slots:    []schedule.SlotWindow{w("09:00", "09:30")},
	})
	require.NoError(t, err)
	oldSlot := created.Slots[0].ID

	updated, err := svc.Update(ctx, doctorID, created.ID, schedule.ScheduleUpdate{
		Slots: []schedule.SlotWindow{w("13:00", "13:30"), w("13:30", "14:00")},
	})
	require.NoError(t, err)
	require.Len(t, updated.Slots, 2)
	assert.NotEqual(t, oldSlot, updated.Slots[0].ID)

	_, err = svc.Update(ctx, doctorID, created.ID, schedule.ScheduleUpdate{
		Slots: []schedule.SlotWindow{w("13:00", "14:00"), w("13:30", "14:30")},
	})
	assert.ErrorIs(t, err, schedule.ErrOverlappingSlots)
}

// bookedSchedule returns a Monday schedule with one SCHEDULED appointment
// next Monday.
func bookedSchedule(t *testing.T, store *memstore.Store, doctorID uuid.UUID) (*schedule.WeeklySchedule, *appointment.Appointment) {
	t.Helper()
	ctx := context.Background()

	sched, err := store.CreateSchedule(ctx, &schedule.WeeklySchedule{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Weekday:  schedule.Monday,
		Slots:    []schedule.Slot{{Start: schedule.MustTimeOfDay("09:00"), End: schedule.MustTimeOfDay("09:30")}},
	})
	require.NoError(t, err)

	patient := store.AddPatient(appointment.Patient{Name: "Izzie Stevens"})
	appt, err := store.InsertAppointment(ctx, &appointment.Appointment{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PatientID:   patient.ID,
		SlotID:      sched.Slots[0].ID,
		Date:        time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
		Status:      appointment.StatusScheduled,
		PatientName: patient.Name,
	})
	require.NoError(t, err)
	return sched, appt
}

func TestUpdateBlockedByUpcomingBookings(t *testing.T) {
	svc, store, doctorID := setup(t)
	ctx := context.Background()
	sched, appt := bookedSchedule(t, store, doctorID)

	_, err := svc.Update(ctx, doctorID, sched.ID, schedule.ScheduleUpdate{Slots: []schedule.SlotWindow{w("10:00", "10:30")}})
	assert.ErrorIs(t, err, schedule.ErrScheduleHasBookings)

	closed := true
	_, err = svc.Update(ctx, doctorID, sched.ID, schedule.ScheduleUpdate{IsClosed: &closed})
	assert.ErrorIs(t, err, schedule.ErrScheduleHasBookings)

	assert.ErrorIs(t, svc.Delete(ctx, doctorID, sched.ID), schedule.ErrScheduleHasBookings)

	// Once the booking is cancelled the slot set may change.
	_, err = store.UpdateAppointmentStatus(ctx, appt.ID, appointment.StatusScheduled, appointment.StatusCancelled)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, doctorID, sched.ID, schedule.ScheduleUpdate{Slots: []schedule.SlotWindow{w("10:00", "10:30")}})
	require.NoError(t, err)
	require.Len(t, updated.Slots, 1)

	_, err = store.GetSlot(ctx, appt.SlotID)
	assert.ErrorIs(t, err, schedule.ErrSlotNotFound, "replaced slots are retired")
}

func TestDeleteKeepsHistoryIntact(t *testing.T) {
	svc, store, doctorID := setup(t)
	ctx := context.Background()
	sched, appt := bookedSchedule(t, store, doctorID)

	_, err := store.UpdateAppointmentStatus(ctx, appt.ID, appointment.StatusScheduled, appointment.StatusCompleted)
	require.NoError(t, err)

	// A completed appointment still references the slot.
	assert.ErrorIs(t, svc.Delete(ctx, doctorID, sched.ID), schedule.ErrScheduleInUse)

	require.NoError(t, store.DeleteAppointment(ctx, appt.ID))
	require.NoError(t, svc.Delete(ctx, doctorID, sched.ID))

	_, err = svc.Get(ctx, doctorID, sched.ID)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}
