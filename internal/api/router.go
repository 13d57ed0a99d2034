package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

type RouterConfig struct {
	Schedules    *schedule.Service
	Appointments *appointment.Service
	Auth         *auth.Resolver
	Health       *HealthHandler
	Gatherer     prometheus.Gatherer // nil uses the default registry
	Logger       *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	schedules, appts := cfg.Schedules, cfg.Appointments

	r.Route("/v1/doctor", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth, writeServiceError, auth.RoleDoctor))

		r.Post("/schedules", createScheduleHandler(schedules))
		r.Get("/schedules", listSchedulesHandler(schedules))
		r.Get("/schedules/{id}", getScheduleHandler(schedules))
		r.Patch("/schedules/{id}", updateScheduleHandler(schedules))
		r.Delete("/schedules/{id}", deleteScheduleHandler(schedules))

		r.Get("/availability", availabilityHandler(appts, doctorFromActor))
		r.Get("/alternatives", alternativesHandler(appts, doctorFromActor))

		r.Post("/appointments", createAppointmentHandler(appts))
		r.Get("/appointments", listAppointmentsHandler(appts))
		r.Get("/appointments/{id}", getAppointmentHandler(appts))
		r.Patch("/appointments/{id}", updateAppointmentHandler(appts))
		r.Delete("/appointments/{id}", deleteAppointmentHandler(appts))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(appts))
	})

	r.Route("/v1/agent/doctors/{doctor_id}", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth, writeServiceError, auth.RoleAgent))

		r.Get("/availability", availabilityHandler(appts, doctorFromPath))
		r.Get("/alternatives", alternativesHandler(appts, doctorFromPath))

		r.Post("/appointments", agentCreateAppointmentHandler(appts, cfg.Logger))
		r.Patch("/appointments/{id}", agentUpdateAppointmentHandler(appts, cfg.Logger))
		r.Post("/appointments/{id}/cancel", agentCancelAppointmentHandler(appts))
	})

	return r
}
