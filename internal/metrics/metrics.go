package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/store"
)

const namespace = "pos"

// Operation labels.
const (
	OpPurchase            = "purchase"
	OpReturn              = "return"
	OpReturnByTransaction = "return_by_transaction"
)

type Metrics struct {
	registry *prometheus.Registry

	// Committed counts units of work that committed, by operation.
	Committed *prometheus.CounterVec
	// Rejected counts operations that failed, by operation and error kind.
	Rejected *prometheus.CounterVec
	// Amount sums committed transaction totals (refunds as positive), by operation.
	Amount *prometheus.CounterVec
	// Duration observes the unit-of-work latency, by operation.
	Duration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Committed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_committed_total",
				Help:      "Transactions committed",
			},
			[]string{"operation"},
		),
		Rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_rejected_total",
				Help:      "Transaction requests that changed nothing",
			},
			[]string{"operation", "reason"},
		),
		Amount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transaction_amount_total",
				Help:      "Absolute value of committed transaction totals",
			},
			[]string{"operation"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Time spent in the unit of work",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveCommit(operation string, amount float64, startedAt time.Time) {
	m.Committed.WithLabelValues(operation).Inc()
	if amount < 0 {
		amount = -amount
	}
	m.Amount.WithLabelValues(operation).Add(amount)
	m.Duration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
}

func (m *Metrics) ObserveRejection(operation string, err error) {
	m.Rejected.WithLabelValues(operation, Reason(err)).Inc()
}

// Reason buckets an operation error into a low-cardinality label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, auth.ErrAdminRequired):
		return "admin_required"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrIntegrityViolation):
		return "integrity_violation"
	}
	return "internal"
}
