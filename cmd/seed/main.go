package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create, each with a full week of schedules")
	patients := flag.Int("patients", 2000, "number of patients to create")
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("seed starting", "doctors", *doctors, "patients", *patients)

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 0)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	doctorIDs, err := seedDoctors(context.Background(), logger, pool, faker, *doctors)
	if err != nil {
		logger.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	if err := seedSchedules(context.Background(), logger, pool, doctorIDs); err != nil {
		logger.Error("seed schedules", "error", err)
		os.Exit(1)
	}
	if err := seedPatients(context.Background(), logger, pool, faker, *patients); err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedDoctors(ctx context.Context, logger *logging.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	logger.Info("seeding doctors", "count", count)

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			name := "Dr. " + faker.Name()
			specialty := faker.RandomString(memstore.Specialties)

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, specialty)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("doctors seeded")
	return ids, nil
}

// seedSchedules goes through the schedule repository so seeded weeks obey
// the same overlap and uniqueness rules as ones created over the API.
func seedSchedules(ctx context.Context, logger *logging.Logger, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	repo := schedule.NewPgRepository(pool)
	week := schedule.ClinicWeek()

	for _, windows := range week {
		if err := schedule.ValidateSlots(windows); err != nil {
			return err
		}
	}

	for _, doctorID := range doctorIDs {
		for _, sched := range schedule.WeekFromTemplate(doctorID, week) {
			if _, err := repo.CreateSchedule(ctx, sched); err != nil {
				return err
			}
		}
	}

	logger.Info("schedules seeded", "doctors", len(doctorIDs))
	return nil
}

func seedPatients(ctx context.Context, logger *logging.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	logger.Info("seeding patients", "count", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, name, email, phone, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info("patients seeded", "done", end, "total", count)
	}

	return nil
}
