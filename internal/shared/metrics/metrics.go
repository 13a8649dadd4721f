package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_transitions_total",
		Help: "Application stage transitions by stage and resulting status.",
	}, []string{"stage", "status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_ms",
		Help:    "Stage duration in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
	}, []string{"stage"})

	llmCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_calls_total",
		Help: "Provider calls by model and outcome.",
	}, []string{"model", "outcome"})

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Tokens consumed by model and direction.",
	}, []string{"model", "direction"})

	costUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_cost_usd_total",
		Help: "Computed generation cost in USD by stage.",
	}, []string{"stage"})

	verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_verdicts_total",
		Help: "Verification agent verdicts by agent and verdict.",
	}, []string{"agent", "verdict"})

	regenerations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "block_regenerations_total",
		Help: "Tier 2 blocks regenerated after a failed verification.",
	})

	manualReviews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "block_manual_review_total",
		Help: "Blocks marked as needing manual review.",
	})

	budgetBreaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cost_ceiling_breaches_total",
		Help: "Applications whose cost crossed the configured ceiling.",
	})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter by route class.",
	}, []string{"class"})

	jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_total",
		Help: "Worker job outcomes.",
	}, []string{"outcome"})
)

// IncStageTransition counts a stage entering the given status.
func IncStageTransition(stage, status string) {
	stageTransitions.WithLabelValues(stage, status).Inc()
}

// ObserveStageDurationMs records a stage duration in milliseconds.
func ObserveStageDurationMs(stage string, value float64) {
	if value < 0 {
		value = 0
	}
	stageDuration.WithLabelValues(stage).Observe(value)
}

// IncLLMCall counts one provider call attempt.
func IncLLMCall(model, outcome string) {
	llmCalls.WithLabelValues(model, outcome).Inc()
}

// AddTokens adds consumed tokens for a model.
func AddTokens(model string, input, output int) {
	if input > 0 {
		llmTokens.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		llmTokens.WithLabelValues(model, "output").Add(float64(output))
	}
}

// AddCost adds computed cost in USD for a stage.
func AddCost(stage string, usd float64) {
	if usd > 0 {
		costUSD.WithLabelValues(stage).Add(usd)
	}
}

// IncVerdict counts one verification agent verdict.
func IncVerdict(agent, verdict string) {
	verdicts.WithLabelValues(agent, verdict).Inc()
}

// IncRegeneration counts one regeneration attempt.
func IncRegeneration() {
	regenerations.Inc()
}

// IncManualReview counts one block flagged for manual review.
func IncManualReview() {
	manualReviews.Inc()
}

// IncBudgetBreach counts one cost ceiling breach.
func IncBudgetBreach() {
	budgetBreaches.Inc()
}

// IncJob counts a worker job outcome (received, completed, failed, dropped).
func IncJob(outcome string) {
	jobs.WithLabelValues(outcome).Inc()
}

// IncRateLimited counts one request rejected for the given route class.
func IncRateLimited(class string) {
	rateLimited.WithLabelValues(class).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
