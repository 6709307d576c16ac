package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	decisionTotal    *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	decisionSpend    prometheus.Histogram

	negotiationTotal   *prometheus.CounterVec
	listingHealedTotal prometheus.Counter
	chainReadErrors    prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	runtimeRunTotal      *prometheus.CounterVec
	runtimeFallbackTotal prometheus.Counter
	llmRoundsTotal       prometheus.Histogram

	budgetAlertTotal *prometheus.CounterVec
	walletSpendTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			decisionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decision_total",
					Help: "Total curation decisions by status.",
				},
				[]string{"status"},
			),
			decisionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "decision_duration_seconds",
					Help:    "Decision pipeline duration in seconds by runtime.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"runtime"},
			),
			decisionSpend: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "decision_spend_usd",
					Help:    "Total committed spend per decision in USD.",
					Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
			),
			negotiationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "negotiation_total",
					Help: "Total negotiations by outcome.",
				},
				[]string{"outcome"},
			),
			listingHealedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "listing_healed_total",
					Help: "Total cached listings auto-healed to stale.",
				},
			),
			chainReadErrors: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "chain_read_errors_total",
					Help: "Total on-chain listing read failures.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			runtimeRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "runtime_run_total",
					Help: "Total runtime adapter runs by kind and status.",
				},
				[]string{"kind", "status"},
			),
			runtimeFallbackTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "runtime_fallback_total",
					Help: "Total LLM runtime failures masked by the local fallback.",
				},
			),
			llmRoundsTotal: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "llm_rounds_per_run",
					Help:    "Tool-calling rounds consumed per LLM run.",
					Buckets: []float64{1, 2, 3, 4, 5, 6},
				},
			),
			budgetAlertTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "budget_alert_total",
					Help: "Total budget threshold alerts by level.",
				},
				[]string{"level"},
			),
			walletSpendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wallet_spend_total",
					Help: "Total wallet spend attempts by outcome.",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.decisionTotal,
			m.decisionDuration,
			m.decisionSpend,
			m.negotiationTotal,
			m.listingHealedTotal,
			m.chainReadErrors,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.runtimeRunTotal,
			m.runtimeFallbackTotal,
			m.llmRoundsTotal,
			m.budgetAlertTotal,
			m.walletSpendTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordDecision(runtime, status string, duration time.Duration, spendUSD float64) {
	m := getMetrics()
	m.decisionTotal.WithLabelValues(status).Inc()
	m.decisionDuration.WithLabelValues(runtime).Observe(duration.Seconds())
	m.decisionSpend.Observe(spendUSD)
}

func RecordNegotiation(outcome string) {
	getMetrics().negotiationTotal.WithLabelValues(outcome).Inc()
}

func RecordListingHealed() {
	getMetrics().listingHealedTotal.Inc()
}

func RecordChainReadError() {
	getMetrics().chainReadErrors.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordRuntimeRun(kind string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().runtimeRunTotal.WithLabelValues(kind, status).Inc()
}

func RecordRuntimeFallback() {
	getMetrics().runtimeFallbackTotal.Inc()
}

func RecordLLMRounds(rounds int) {
	getMetrics().llmRoundsTotal.Observe(float64(rounds))
}

func RecordBudgetAlert(level string) {
	getMetrics().budgetAlertTotal.WithLabelValues(level).Inc()
}

func RecordWalletSpend(allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	getMetrics().walletSpendTotal.WithLabelValues(outcome).Inc()
}
