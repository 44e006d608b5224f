package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "vault"
	metricsSubsystem = "runtime"

	resultSuccess = "success"
	resultFailed  = "failed"
)

type bankMetrics struct {
	transactions      *prometheus.CounterVec
	instructionErrors *prometheus.CounterVec
	feesCollected     prometheus.Counter
	airdrops          prometheus.Counter
	slot              prometheus.Gauge
}

var (
	bankMetricsOnce     sync.Once
	bankMetricsRegistry *bankMetrics
)

func defaultBankMetrics() *bankMetrics {
	bankMetricsOnce.Do(func() {
		bankMetricsRegistry = &bankMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "transactions_total",
				Help:      "Total transactions processed, by result and error key.",
			}, []string{"result", "error"}),
			instructionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "instruction_errors_total",
				Help:      "Total failed instructions, by program error.",
			}, []string{"error"}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "fees_collected_lamports_total",
				Help:      "Total lamports collected as transaction fees.",
			}),
			airdrops: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "airdrops_total",
				Help:      "Total airdrops sent by the faucet.",
			}),
			slot: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "slot",
				Help:      "Current slot of the ledger.",
			}),
		}
		prometheus.MustRegister(
			bankMetricsRegistry.transactions,
			bankMetricsRegistry.instructionErrors,
			bankMetricsRegistry.feesCollected,
			bankMetricsRegistry.airdrops,
			bankMetricsRegistry.slot,
		)
	})
	return bankMetricsRegistry
}
