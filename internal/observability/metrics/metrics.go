package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking engine.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
	reserveLatency prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Reservation conflicts by subject kind",
		}, []string{"subject_kind"}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of reservation commits",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.reserveLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflict(subjectKind string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(subjectKind).Inc()
}

func (m *SchedulingMetrics) ObserveReserveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.reserveLatency.Observe(seconds)
}

// BillingMetrics exposes counters for the billing reconciler.
type BillingMetrics struct {
	paymentsTotal     *prometheus.CounterVec
	invoicesGenerated prometheus.Counter
	invoicesReopened  prometheus.Counter
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Recorded payments by method",
		}, []string{"method"}),
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoices_generated_total",
			Help:      "Invoices generated",
		}),
		invoicesReopened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoices_reopened_total",
			Help:      "Paid invoices flipped back to unpaid by late treatment lines",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.paymentsTotal, m.invoicesGenerated, m.invoicesReopened)
	return m
}

func (m *BillingMetrics) ObservePayment(method string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method).Inc()
}

func (m *BillingMetrics) ObserveInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

func (m *BillingMetrics) ObserveInvoiceReopened() {
	if m == nil {
		return
	}
	m.invoicesReopened.Inc()
}
