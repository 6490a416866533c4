package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SummariesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartbrief_summaries_total",
		Help: "Summaries persisted, by operation (create, regenerate).",
	}, []string{"operation"})

	InsufficientCreditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartbrief_insufficient_credits_total",
		Help: "Requests rejected because the balance was too low.",
	})

	CreditsDebitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartbrief_credits_debited_total",
		Help: "Credits removed from balances, by reason.",
	}, []string{"reason"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartbrief_provider_request_duration_seconds",
		Help:    "AI provider call latency.",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"provider", "status"})

	ProviderTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartbrief_provider_tokens_total",
		Help: "Tokens reported by AI providers.",
	}, []string{"provider", "model", "type"})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SummariesTotal,
		InsufficientCreditsTotal,
		CreditsDebitedTotal,
		ProviderRequestDuration,
		ProviderTokensTotal,
	)
}

// Handler exposes gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveProviderCall records latency, outcome and token usage of one AI call.
func ObserveProviderCall(provider, model string, elapsed time.Duration, promptTokens, completionTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderRequestDuration.WithLabelValues(provider, status).Observe(elapsed.Seconds())
	if promptTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

func IncSummary(operation string) {
	SummariesTotal.WithLabelValues(operation).Inc()
}

func IncInsufficientCredits() {
	InsufficientCreditsTotal.Inc()
}

func AddCreditsDebited(reason string, amount int) {
	if amount > 0 {
		CreditsDebitedTotal.WithLabelValues(reason).Add(float64(amount))
	}
}
