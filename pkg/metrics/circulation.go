package metrics

import "github.com/prometheus/client_golang/prometheus"

// CirculationMetrics counts the outcomes of circulation operations.
type CirculationMetrics struct {
	checkouts    *prometheus.CounterVec
	returns      prometheus.Counter
	finesIssued  *prometheus.CounterVec
	reservations *prometheus.CounterVec
}

// NewCirculationMetrics registers circulation counters on the provided registerer.
func NewCirculationMetrics(reg prometheus.Registerer) *CirculationMetrics {
	if reg == nil {
		return &CirculationMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	returns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circulation_returns_total",
		Help: "Completed loan returns.",
	})
	finesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_fines_issued_total",
		Help: "Fines issued by reason.",
	}, []string{"reason"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_reservations_total",
		Help: "Reservation transitions by event.",
	}, []string{"event"})
	reg.MustRegister(checkouts, returns, finesIssued, reservations)
	return &CirculationMetrics{
		checkouts:    checkouts,
		returns:      returns,
		finesIssued:  finesIssued,
		reservations: reservations,
	}
}

// IncCheckout counts one checkout attempt with the given outcome label.
func (c *CirculationMetrics) IncCheckout(outcome string) {
	if c == nil || c.checkouts == nil {
		return
	}
	c.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReturn counts one completed return.
func (c *CirculationMetrics) IncReturn() {
	if c == nil || c.returns == nil {
		return
	}
	c.returns.Inc()
}

// IncFineIssued counts one issued fine with the given reason label.
func (c *CirculationMetrics) IncFineIssued(reason string) {
	if c == nil || c.finesIssued == nil {
		return
	}
	c.finesIssued.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncReservation counts one reservation transition with the given event label.
func (c *CirculationMetrics) IncReservation(event string) {
	if c == nil || c.reservations == nil {
		return
	}
	c.reservations.WithLabelValues(normalizeLabel(event)).Inc()
}
