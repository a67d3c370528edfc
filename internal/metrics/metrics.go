package metrics

import (
	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elys-network/autorewarder/internal/utils"
)

var (
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorewarder_collections_total",
			Help: "Total number of per-vault strategy rewards collections",
		},
		[]string{"result"},
	)

	DistributeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorewarder_distribute_calls_total",
			Help: "Total number of distribute calls by outcome",
		},
		[]string{"outcome"},
	)

	RewardsPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorewarder_rewards_paid_tokens_total",
			Help: "Total rewards paid to vaults, in whole reward tokens",
		},
	)

	CyclesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorewarder_cycles_completed_total",
			Help: "Total number of fully traversed distribution cycles",
		},
	)

	OperatorCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorewarder_operator_cycles_total",
			Help: "Total number of operator cycles by outcome",
		},
		[]string{"outcome"},
	)

	OperatorCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autorewarder_operator_cycle_duration_seconds",
			Help:    "Duration of operator cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	StaleCyclesAbandonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorewarder_stale_cycles_abandoned_total",
			Help: "Running cycles dropped by the operator because their snapshot outlived the max info age",
		},
	)

	Cursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autorewarder_last_distributed_id",
			Help: "Position of the distribution cursor in the vault registry",
		},
	)

	RegisteredVaults = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autorewarder_registered_vaults",
			Help: "Number of vaults in the registry",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorewarder_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorewarder_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
		[]string{"method", "route"},
	)
)

// ObservePaid adds a paid amount in base units to RewardsPaidTotal.
func ObservePaid(amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	tokens, err := utils.SDKIntToFloat64(amount, utils.RewardDecimals)
	if err != nil {
		return
	}
	RewardsPaidTotal.Add(tokens)
}
