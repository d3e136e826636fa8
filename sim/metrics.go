// Exposes replica-exchange progress as Prometheus metrics:
// swap attempts/acceptances per adjacent pair, local-move outcomes per slot,
// and iteration wall time.

package sim

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExchangeMetrics holds the Prometheus collectors an Engine reports into.
// A nil *ExchangeMetrics is valid and records nothing.
type ExchangeMetrics struct {
	swapAttempts      *prometheus.CounterVec
	swapAccepted      *prometheus.CounterVec
	localMoves        *prometheus.CounterVec
	iterationDuration prometheus.Histogram
}

// NewExchangeMetrics registers the collectors with reg. Use a fresh
// prometheus.NewRegistry() per engine when several engines run in one process
// (calibration trials, tests); registering twice on the same registry panics.
func NewExchangeMetrics(reg prometheus.Registerer) *ExchangeMetrics {
	factory := promauto.With(reg)
	return &ExchangeMetrics{
		swapAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paratemp_swap_attempts_total",
			Help: "Swap attempts per adjacent ladder pair",
		}, []string{"pair"}),
		swapAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paratemp_swap_accepted_total",
			Help: "Accepted swaps per adjacent ladder pair",
		}, []string{"pair"}),
		localMoves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paratemp_local_moves_total",
			Help: "Local moves per ladder slot by result",
		}, []string{"replica", "result"}),
		iterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paratemp_iteration_duration_seconds",
			Help:    "Wall time of one local phase plus swap sweep",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		}),
	}
}

func (m *ExchangeMetrics) observeSwap(p Pair, accepted bool) {
	if m == nil {
		return
	}
	label := p.String()
	m.swapAttempts.WithLabelValues(label).Inc()
	if accepted {
		m.swapAccepted.WithLabelValues(label).Inc()
	}
}

func (m *ExchangeMetrics) observeLocal(replica, accepted, rejected int) {
	if m == nil {
		return
	}
	slot := strconv.Itoa(replica)
	m.localMoves.WithLabelValues(slot, "accepted").Add(float64(accepted))
	m.localMoves.WithLabelValues(slot, "rejected").Add(float64(rejected))
}

func (m *ExchangeMetrics) observeIteration(d time.Duration) {
	if m == nil {
		return
	}
	m.iterationDuration.Observe(d.Seconds())
}
