package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	bountiesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "lifecycle",
			Name:      "created_total",
			Help:      "Total number of bounties created.",
		},
	)

	bountiesCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "lifecycle",
			Name:      "cancelled_total",
			Help:      "Total number of bounties cancelled.",
		},
	)

	bountiesUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "lifecycle",
			Name:      "updated_total",
			Help:      "Total number of bounty parameter updates.",
		},
	)

	deposits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "lifecycle",
			Name:      "deposits_total",
			Help:      "Total number of top-up deposits.",
		},
	)

	executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "execution",
			Name:      "runs_total",
			Help:      "Total number of trigger executions by outcome.",
		},
		[]string{"outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bounties",
			Subsystem: "execution",
			Name:      "run_duration_seconds",
			Help:      "Duration of trigger executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	escrowDisbursements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bounties",
			Subsystem: "execution",
			Name:      "escrow_disbursements_total",
			Help:      "Total number of escrow disbursements.",
		},
	)
)

func init() {
	Registry.MustRegister(
		bountiesCreated,
		bountiesCancelled,
		bountiesUpdated,
		deposits,
		executions,
		executionDuration,
		escrowDisbursements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordBountyCreated increments the creation counter.
func RecordBountyCreated() { bountiesCreated.Inc() }

// RecordBountyCancelled increments the cancellation counter.
func RecordBountyCancelled() { bountiesCancelled.Inc() }

// RecordBountyUpdated increments the update counter.
func RecordBountyUpdated() { bountiesUpdated.Inc() }

// RecordDeposit increments the deposit counter.
func RecordDeposit() { deposits.Inc() }

// RecordExecution records a trigger execution and its outcome label
// ("completed", "skipped" or a skip reason).
func RecordExecution(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	executions.WithLabelValues(outcome).Inc()
	executionDuration.Observe(duration.Seconds())
}

// RecordEscrowDisbursed increments the escrow disbursement counter.
func RecordEscrowDisbursed() { escrowDisbursements.Inc() }
