package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	conflictsTotal     *prometheus.CounterVec
	guardLatency       prometheus.Histogram
	alternativesServed prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Appointment operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking attempts rejected by the conflict guard",
		}, []string{"source"}),
		guardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "guard_latency_seconds",
			Help:      "Time spent inside the booking lock (check and write)",
			Buckets:   prometheus.DefBuckets,
		}),
		alternativesServed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "alternatives_returned",
			Help:      "Number of alternative slots returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.guardLatency, m.alternativesServed)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveConflict records a rejected booking. source is "guard" when the
// pre-write check found a holder, "storage" when the unique index fired,
// and "lock" when another request held the booking lock.
func (m *BookingMetrics) ObserveConflict(source string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(source).Inc()
}

func (m *BookingMetrics) ObserveGuardLatency(seconds float64) {
	if m == nil {
		return
	}
	m.guardLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveAlternatives(n int) {
	if m == nil {
		return
	}
	m.alternativesServed.Observe(float64(n))
}
