package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var (
	// Monday 2025-03-10, 08:00 UTC.
	fixedNow   = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	today      = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	nextMonday = time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	nextTue    = time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC)
	nextWed    = time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC)
	nextThu    = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc       *appointment.Service
	store     *memstore.Store
	doctorID  uuid.UUID
	patientID uuid.UUID
	monday    []schedule.Slot // 09:00, 09:30, 10:00
	wednesday []schedule.Slot // 14:00
}

// passthroughLocker leaves conflict detection to the store alone.
type passthroughLocker struct{}

func (passthroughLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func addSchedule(t *testing.T, store *memstore.Store, doctorID uuid.UUID, wd schedule.Weekday, closed bool, windows ...string) []schedule.Slot {
	t.Helper()
	sched := &schedule.WeeklySchedule{ID: uuid.New(), DoctorID: doctorID, Weekday: wd, IsClosed: closed}
	for i := 0; i+1 < len(windows); i += 2 {
		sched.Slots = append(sched.Slots, schedule.Slot{
			Start: schedule.MustTimeOfDay(windows[i]),
			End:   schedule.MustTimeOfDay(windows[i+1]),
		})
	}
	created, err := store.CreateSchedule(context.Background(), sched)
	require.NoError(t, err)
	return created.Slots
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	if locker == nil {
		locker = memstore.NewLocker()
	}

	store := memstore.New()
	doc := store.AddDoctor(appointment.Doctor{Name: "Dr. Bailey"})
	email := "meredith@example.com"
	patient := store.AddPatient(appointment.Patient{Name: "Meredith Grey", Email: &email})

	f := &fixture{
		store:     store,
		doctorID:  doc.ID,
		patientID: patient.ID,
		monday:    addSchedule(t, store, doc.ID, schedule.Monday, false, "09:00", "09:30", "09:30", "10:00", "10:00", "10:30"),
		wednesday: addSchedule(t, store, doc.ID, schedule.Wednesday, false, "14:00", "14:30"),
	}
	addSchedule(t, store, doc.ID, schedule.Tuesday, true)

	f.svc = appointment.NewService(store, store, locker, appointment.Options{
		Logger:  logging.New("error"),
		Metrics: metrics.NewBookingMetrics(prometheus.NewRegistry()),
		Now:     func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) book(t *testing.T, patientID, slotID uuid.UUID, date time.Time) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), appointment.CreateInput{
		DoctorID:  f.doctorID,
		PatientID: patientID,
		SlotID:    slotID,
		Date:      date,
	})
	require.NoError(t, err)
	return appt
}

func TestCreateBooksSlot(t *testing.T) {
	f := newFixture(t, nil)
	reason := "annual check-up"

	appt, err := f.svc.Create(context.Background(), appointment.CreateInput{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		SlotID:    f.monday[0].ID,
		Date:      nextMonday.Add(15 * time.Hour), // clock part is ignored
		Reason:    &reason,
	})
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.Equal(t, nextMonday, appt.Date)
	assert.Equal(t, "Meredith Grey", appt.PatientName)
	require.NotNil(t, appt.PatientEmail)
	assert.Equal(t, "meredith@example.com", *appt.PatientEmail)
	assert.Equal(t, &reason, appt.Reason)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, appointment.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)
}

func TestCreateAllowsToday(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, f.patientID, f.monday[0].ID, today)
	assert.Equal(t, today, appt.Date)
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t, nil)
	other := f.store.AddDoctor(appointment.Doctor{Name: "Dr. Webber"})
	otherSlots := addSchedule(t, f.store, other.ID, schedule.Monday, false, "09:00", "09:30")
	f.book(t, f.patientID, f.monday[1].ID, nextMonday)

	cases := []struct {
		name string
		in   appointment.CreateInput
		want error
		kind apperr.Kind
	}{
		{
			name: "unknown patient",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: uuid.New(), SlotID: uuid.New(), Date: nextTue},
			want: appointment.ErrPatientNotFound,
			kind: apperr.KindNotFound,
		},
		{
			name: "unknown slot",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: f.patientID, SlotID: uuid.New(), Date: nextMonday},
			want: schedule.ErrSlotNotFound,
			kind: apperr.KindNotFound,
		},
		{
			name: "slot of another doctor",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: f.patientID, SlotID: otherSlots[0].ID, Date: nextMonday},
			want: appointment.ErrSlotForbidden,
			kind: apperr.KindAuthorization,
		},
		{
			name: "weekday mismatch",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: f.patientID, SlotID: f.monday[0].ID, Date: nextTue},
			want: appointment.ErrWeekdayMismatch,
			kind: apperr.KindValidation,
		},
		{
			name: "past date",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: f.patientID, SlotID: f.monday[0].ID, Date: today.AddDate(0, 0, -7)},
			want: appointment.ErrPastDate,
			kind: apperr.KindPastDate,
		},
		{
			name: "already booked",
			in:   appointment.CreateInput{DoctorID: f.doctorID, PatientID: f.patientID, SlotID: f.monday[1].ID, Date: nextMonday},
			want: appointment.ErrSlotAlreadyBooked,
			kind: apperr.KindConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"in-process lock": memstore.NewLocker(),
		"redis lock":      redisclient.NewRedisLocker(client, 5*time.Second),
		"storage only":    passthroughLocker{},
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			const racers = 20

			patients := make([]uuid.UUID, racers)
			for i := range patients {
				patients[i] = f.store.AddPatient(appointment.Patient{Name: "Racer"}).ID
			}

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				wins    int
				errs    []error
				start   = make(chan struct{})
				slotID  = f.monday[2].ID
				ctx     = context.Background()
				dateArg = nextMonday
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(patientID uuid.UUID) {
					defer wg.Done()
					<-start
					_, err := f.svc.Create(ctx, appointment.CreateInput{
						DoctorID:  f.doctorID,
						PatientID: patientID,
						SlotID:    slotID,
						Date:      dateArg,
					})
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						wins++
						return
					}
					errs = append(errs, err)
				}(patients[i])
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, wins)
			require.Len(t, errs, racers-1)
			for _, err := range errs {
				assert.True(t,
					errors.Is(err, appointment.ErrSlotAlreadyBooked) || errors.Is(err, appointment.ErrSlotBeingBooked),
					"unexpected error: %v", err)
				assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
			}

			day, err := f.svc.ResolveAvailability(ctx, f.doctorID, nextMonday, &slotID)
			require.NoError(t, err)
			assert.Len(t, day.Booked, 1)
		})
	}
}

func TestLockHeldReportsBeingBooked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, redisclient.NewRedisLocker(client, 5*time.Second))
	key := redisclient.BookingLockKey(f.doctorID, f.monday[0].ID, nextMonday)
	require.NoError(t, mr.Set(key, "someone-else"))

	_, err := f.svc.Create(context.Background(), appointment.CreateInput{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		SlotID:    f.monday[0].ID,
		Date:      nextMonday,
	})
	assert.ErrorIs(t, err, appointment.ErrSlotBeingBooked)

	mr.Del(key)
	f.book(t, f.patientID, f.monday[0].ID, nextMonday)
}

// Doctor D, MONDAY 09:00-09:30: book, conflict, cancel, rebook.
func TestBookConflictCancelRebook(t *testing.T) {
	store := memstore.New()
	doc := store.AddDoctor(appointment.Doctor{Name: "Dr. D"})
	p := store.AddPatient(appointment.Patient{Name: "P"})
	q := store.AddPatient(appointment.Patient{Name: "Q"})
	slots := addSchedule(t, store, doc.ID, schedule.Monday, false, "09:00", "09:30")

	svc := appointment.NewService(store, store, memstore.NewLocker(), appointment.Options{
		Logger: logging.New("error"),
		Now:    func() time.Time { return fixedNow },
	})
	ctx := context.Background()
	in := appointment.CreateInput{DoctorID: doc.ID, PatientID: p.ID, SlotID: slots[0].ID, Date: nextMonday}

	first, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, first.Status)

	in.PatientID = q.ID
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, appointment.ErrSlotAlreadyBooked)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	cancelled, err := svc.Cancel(ctx, doc.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)

	second, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, q.ID, second.PatientID)

	_, err = svc.Cancel(ctx, doc.ID, first.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestRescheduleExcludesSelf(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)
	f.book(t, f.patientID, f.monday[1].ID, nextMonday)

	// Same triple: the appointment does not conflict with itself.
	notes := "bring lab results"
	sameSlot := f.monday[0].ID
	updated, err := f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{SlotID: &sameSlot, Date: &nextMonday, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, &notes, updated.Notes)

	taken := f.monday[1].ID
	_, err = f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{SlotID: &taken})
	assert.ErrorIs(t, err, appointment.ErrSlotAlreadyBooked)

	wed := f.wednesday[0].ID
	_, err = f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{SlotID: &wed})
	assert.ErrorIs(t, err, appointment.ErrWeekdayMismatch)

	moved, err := f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{SlotID: &wed, Date: &nextWed})
	require.NoError(t, err)
	assert.Equal(t, wed, moved.SlotID)
	assert.Equal(t, nextWed, moved.Date)

	day, err := f.svc.ResolveAvailability(ctx, f.doctorID, nextMonday, nil)
	require.NoError(t, err)
	assert.Len(t, day.Available, 2, "the old slot is free again")

	events := f.store.Events()
	assert.Equal(t, appointment.EventAppointmentRescheduled, events[len(events)-1].EventType)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)

	bogus := appointment.AppointmentStatus("NO_SHOW")
	_, err := f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{Status: &bogus})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)

	completed := appointment.StatusCompleted
	done, err := f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)

	scheduled := appointment.StatusScheduled
	_, err = f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{Status: &scheduled})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	slot := f.monday[1].ID
	_, err = f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{SlotID: &slot})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	// Notes stay editable on a finished appointment.
	notes := "follow up in 6 months"
	edited, err := f.svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, &notes, edited.Notes)

	_, err = f.svc.Complete(ctx, f.doctorID, a.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

// interleavingStore runs before ahead of each full-row appointment write,
// standing in for a second caller that commits in between.
type interleavingStore struct {
	*memstore.Store
	before func()
}

func (s interleavingStore) UpdateAppointment(ctx context.Context, a *appointment.Appointment, from appointment.AppointmentStatus, rescheduled bool) (*appointment.Appointment, error) {
	s.before()
	return s.Store.UpdateAppointment(ctx, a, from, rescheduled)
}

func TestUpdateDoesNotUndoConcurrentCancel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		rebook bool
	}{
		{"cancelled meanwhile", false},
		{"cancelled and rebooked meanwhile", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)
			other := f.store.AddPatient(appointment.Patient{Name: "Alex Karev"})

			repo := interleavingStore{Store: f.store, before: func() {
				_, err := f.svc.Cancel(ctx, f.doctorID, a.ID)
				require.NoError(t, err)
				if tc.rebook {
					f.book(t, other.ID, f.monday[0].ID, nextMonday)
				}
			}}
			svc := appointment.NewService(repo, f.store, memstore.NewLocker(), appointment.Options{
				Logger: logging.New("error"),
				Now:    func() time.Time { return fixedNow },
			})

			notes := "patient asked for a call back"
			_, err := svc.Update(ctx, f.doctorID, a.ID, appointment.UpdateInput{Notes: &notes})
			require.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
			assert.NotErrorIs(t, err, appointment.ErrSlotAlreadyBooked)

			stored, err := f.svc.Get(ctx, f.doctorID, a.ID)
			require.NoError(t, err)
			assert.Equal(t, appointment.StatusCancelled, stored.Status)
			assert.Nil(t, stored.Notes)
		})
	}
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)
	stranger := uuid.New()

	_, err := f.svc.Get(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentForbidden)

	_, err = f.svc.Cancel(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentForbidden)

	assert.ErrorIs(t, f.svc.Delete(ctx, stranger, a.ID), appointment.ErrAppointmentForbidden)

	_, err = f.svc.Get(ctx, f.doctorID, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestDeleteFreesSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)

	require.NoError(t, f.svc.Delete(ctx, f.doctorID, a.ID))
	_, err := f.svc.Get(ctx, f.doctorID, a.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	f.book(t, f.patientID, f.monday[0].ID, nextMonday)
}

func TestPatientSnapshotSurvivesProfileChange(t *testing.T) {
	f := newFixture(t, nil)
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)

	require.NoError(t, f.store.UpdatePatient(appointment.Patient{ID: f.patientID, Name: "Meredith Shepherd"}))

	got, err := f.svc.Get(context.Background(), f.doctorID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meredith Grey", got.PatientName)
	require.NotNil(t, got.PatientEmail)
}

func TestListForDoctor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, f.patientID, f.wednesday[0].ID, nextWed)
	a := f.book(t, f.patientID, f.monday[0].ID, nextMonday)
	f.book(t, f.patientID, f.monday[1].ID, nextMonday.AddDate(0, 0, 7))
	_, err := f.svc.Cancel(ctx, f.doctorID, a.ID)
	require.NoError(t, err)

	all, err := f.svc.ListForDoctor(ctx, appointment.ListFilter{DoctorID: f.doctorID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, nextMonday, all[0].Date)
	assert.Equal(t, nextWed, all[1].Date)

	scheduled, err := f.svc.ListForDoctor(ctx, appointment.ListFilter{
		DoctorID: f.doctorID,
		Status:   appointment.StatusScheduled,
		From:     nextTue,
		To:       nextThu,
	})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, nextWed, scheduled[0].Date)

	page, err := f.svc.ListForDoctor(ctx, appointment.ListFilter{DoctorID: f.doctorID, Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, nextMonday.AddDate(0, 0, 7), page[0].Date)

	_, err = f.svc.ListForDoctor(ctx, appointment.ListFilter{DoctorID: f.doctorID, Status: "LATE"})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)
}
