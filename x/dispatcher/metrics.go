package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"

	appmetrics "github.com/nuchain-network/hardware-miner/metrics"
)

// Metrics holds all dispatcher-level metrics.
type Metrics struct {
	registry *appmetrics.ComponentRegistry

	ProofsGenerated prometheus.Counter
	ProofsFailed    *prometheus.CounterVec
	DispatchSkipped prometheus.Counter
	FanoutSize      prometheus.Histogram
	InflightCalls   prometheus.Gauge
	GenerationTime  prometheus.Histogram
}

// NewMetrics creates dispatcher metrics.
func NewMetrics() *Metrics {
	reg := appmetrics.NewComponentRegistry("miner", "dispatcher")

	return &Metrics{
		registry: reg,

		ProofsGenerated: reg.NewCounter(prometheus.CounterOpts{
			Name: "proofs_generated_total",
			Help: "Total number of proofs generated",
		}),

		ProofsFailed: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "proofs_failed_total",
			Help: "Total number of failed proof attempts",
		}, []string{"reason"}),

		DispatchSkipped: reg.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_skipped_total",
			Help: "Rig/height pairs skipped because they were already dispatched",
		}),

		FanoutSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanout_size",
			Help:    "Number of prover calls issued per trigger",
			Buckets: appmetrics.CountBuckets,
		}),

		InflightCalls: reg.NewGauge(prometheus.GaugeOpts{
			Name: "inflight_prover_calls",
			Help: "Prover calls currently in flight",
		}),

		GenerationTime: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "proof_generation_seconds",
			Help:    "Proof generation latency in seconds",
			Buckets: appmetrics.LatencyBuckets,
		}),
	}
}
