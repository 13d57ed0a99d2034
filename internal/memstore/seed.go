package memstore

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Specialties is the pool fake doctors draw from.
var Specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Seeded lists what SeedDemo created.
type Seeded struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
}

// SeedDemo fills the store with fake doctors on the clinic week template
// and fake patients.
func SeedDemo(ctx context.Context, s *Store, faker *gofakeit.Faker, doctors, patients int) (Seeded, error) {
	var out Seeded
	week := schedule.ClinicWeek()

	for i := 0; i < doctors; i++ {
		specialty := faker.RandomString(Specialties)
		d := s.AddDoctor(appointment.Doctor{Name: "Dr. " + faker.Name(), Specialty: &specialty})
		out.Doctors = append(out.Doctors, d.ID)

		for _, sched := range schedule.WeekFromTemplate(d.ID, week) {
			if _, err := s.CreateSchedule(ctx, sched); err != nil {
				return out, fmt.Errorf("seed schedule %s for %s: %w", sched.Weekday, d.ID, err)
			}
		}
	}

	for i := 0; i < patients; i++ {
		email := faker.Email()
		phone := faker.Phone()
		p := s.AddPatient(appointment.Patient{Name: faker.Name(), Email: &email, Phone: &phone})
		out.Patients = append(out.Patients, p.ID)
	}
	return out, nil
}
