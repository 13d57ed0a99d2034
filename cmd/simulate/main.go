package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	RaceTriples  int // triples hammered in the race phase
	Racers       int // concurrent creates per triple
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	WeeksAhead   int
	PostgresDSN  string
	JWTSecret    string
	Location     *time.Location
}

type bookableSlot struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
	Weekday  schedule.Weekday
}

type booking struct {
	DoctorID uuid.UUID
	ID       uuid.UUID
}

type DataPool struct {
	Patients     []uuid.UUID
	Slots        []bookableSlot
	mu           sync.RWMutex
	appointments []booking // Thread-safe list of created appointments
}

func (dp *DataPool) AddAppointment(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booking{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Race         OperationMetrics
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
	Alternatives OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	logger  *logging.Logger
	metrics Metrics

	doubleBooked int64 // race triples with more than one success
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"race_triples", cfg.RaceTriples,
		"racers", cfg.Racers,
	)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data loaded", "patients", len(dataPool.Patients), "slots", len(dataPool.Slots))

	// The simulator books as the automated agent.
	token, err := auth.NewResolver(cfg.JWTSecret).Issue(auth.Actor{ID: uuid.New(), Role: auth.RoleAgent}, 24*time.Hour)
	if err != nil {
		logger.Error("issue agent token", "error", err)
		os.Exit(1)
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		logger: logger,
	}

	if err := sim.RunRace(context.Background()); err != nil {
		logger.Error("race phase failed", "error", err)
		os.Exit(1)
	}
	sim.Run()
	sim.PrintReport()

	if atomic.LoadInt64(&sim.doubleBooked) > 0 {
		os.Exit(2)
	}
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		RaceTriples:  getInt("SIM_RACE_TRIPLES", 20),
		Racers:       getInt("SIM_RACERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2400),
		WeeksAhead:   getInt("SIM_WEEKS_AHEAD", 4),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
		Location:     baseCfg.ClinicLocation,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.PostgresDSN == "":
		return cfg, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	case cfg.Workers <= 0:
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	case cfg.Racers <= 1:
		return cfg, fmt.Errorf("SIM_RACERS must be > 1")
	case cfg.WeeksAhead <= 0:
		return cfg, fmt.Errorf("SIM_WEEKS_AHEAD must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	// Load patients
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	// Load active slots on open days
	rows, err = pool.Query(ctx, `
		SELECT w.doctor_id, s.id, w.weekday
		FROM schedule_slots s
		JOIN weekly_schedules w ON w.id = s.schedule_id
		WHERE s.retired_at IS NULL AND NOT w.is_closed
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var (
			s       bookableSlot
			weekday string
		)
		if err := rows.Scan(&s.DoctorID, &s.SlotID, &weekday); err != nil {
			rows.Close()
			return nil, err
		}
		s.Weekday = schedule.Weekday(weekday)
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()

	if len(dataPool.Patients) < 2 {
		return nil, fmt.Errorf("need at least 2 patients, have %d", len(dataPool.Patients))
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}
	return dataPool, nil
}

// dateFor returns a future date falling on weekday, weeks whole weeks after
// the first such date after today.
func (s *Simulator) dateFor(weekday schedule.Weekday, weeks int) string {
	day := schedule.DayOf(time.Now(), s.config.Location).AddDate(0, 0, 1)
	for schedule.WeekdayOf(day) != weekday {
		day = day.AddDate(0, 0, 1)
	}
	return day.AddDate(0, 0, 7*weeks).Format(schedule.DateLayout)
}

func (s *Simulator) do(ctx context.Context, method, path string, body any) (*http.Response, time.Duration, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

// book posts one agent booking and records it; it reports whether the
// booking was created.
func (s *Simulator) book(ctx context.Context, om *OperationMetrics, slot bookableSlot, patientID uuid.UUID, date string) (bool, error) {
	resp, latency, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/v1/agent/doctors/%s/appointments", slot.DoctorID),
		map[string]string{
			"patient_id": patientID.String(),
			"slot_id":    slot.SlotID.String(),
			"date":       date,
		})
	if err != nil {
		om.Record(latency, false, false)
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&appt); err == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(booking{DoctorID: slot.DoctorID, ID: appt.ID})
		}
		om.Record(latency, true, false)
		return true, nil
	case http.StatusConflict:
		om.Record(latency, false, true)
	default:
		om.Record(latency, false, false)
	}
	return false, nil
}

// RunRace fires Racers concurrent creates at each of RaceTriples distinct
// (doctor, slot, date) triples. Every triple must end with exactly one
// booking.
func (s *Simulator) RunRace(ctx context.Context) error {
	n := s.config.RaceTriples
	if n > len(s.pool.Slots) {
		n = len(s.pool.Slots)
	}
	s.logger.Info("race phase starting", "triples", n, "racers", s.config.Racers)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i, idx := range rng.Perm(len(s.pool.Slots))[:n] {
		slot := s.pool.Slots[idx]
		// Far enough ahead that the load phase rarely collides with it.
		date := s.dateFor(slot.Weekday, s.config.WeeksAhead+1+i%4)

		var wins int64
		g, gctx := errgroup.WithContext(ctx)
		for r := 0; r < s.config.Racers; r++ {
			patientID := s.pool.Patients[(i*s.config.Racers+r)%len(s.pool.Patients)]
			g.Go(func() error {
				ok, err := s.book(gctx, &s.metrics.Race, slot, patientID, date)
				if ok {
					atomic.AddInt64(&wins, 1)
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("race on slot %s %s: %w", slot.SlotID, date, err)
		}

		switch {
		case wins > 1:
			atomic.AddInt64(&s.doubleBooked, 1)
			s.logger.Error("double booking detected", "slot_id", slot.SlotID, "date", date, "successes", wins)
		case wins == 0:
			s.logger.Warn("triple was already taken", "slot_id", slot.SlotID, "date", date)
		}
	}

	s.logger.Info("race phase complete", "double_booked", atomic.LoadInt64(&s.doubleBooked))
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("load phase starting", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case rng.Intn(2) == 0:
				s.doAvailability(ctx, rng)
			default:
				s.doAlternatives(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	_, _ = s.book(ctx, &s.metrics.Booking, slot, patientID, s.dateFor(slot.Weekday, rng.Intn(s.config.WeeksAhead)))
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	resp, latency, err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/v1/agent/doctors/%s/appointments/%s/cancel", b.DoctorID, b.ID), nil)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		// already cancelled by another worker
		conflict = resp.StatusCode == http.StatusConflict
	}
	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	resp, latency, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/agent/doctors/%s/availability?date=%s",
			slot.DoctorID, s.dateFor(slot.Weekday, rng.Intn(s.config.WeeksAhead))), nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doAlternatives(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	resp, latency, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/agent/doctors/%s/alternatives", slot.DoctorID), nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Alternatives.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Race triples: %d x %d racers, double-booked: %d\n",
		s.config.RaceTriples, s.config.Racers, atomic.LoadInt64(&s.doubleBooked))
	fmt.Println()

	printOperationReport("Race booking", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Alternatives", &s.metrics.Alternatives)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
