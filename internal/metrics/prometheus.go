package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nudge_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage", "outcome"},
	)

	NudgeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_requests_total",
			Help: "Total number of nudge requests processed",
		},
		[]string{"status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"type"},
	)

	LLMCost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nudge_llm_cost_usd",
			Help: "Estimated LLM API cost in USD",
		},
	)

	RetrievalResultsCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nudge_retrieval_results_count",
			Help:    "Number of retrieved context items per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
		[]string{"strategy"},
	)

	BenchmarkRelevance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nudge_benchmark_mean_relevance",
			Help: "Mean top-1 relevance per strategy from the last benchmark",
		},
		[]string{"strategy"},
	)

	ActiveStrategy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nudge_active_strategy",
			Help: "1 for the currently active retrieval strategy, 0 otherwise",
		},
		[]string{"strategy"},
	)

	EmbeddingCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_embedding_cache_hits_total",
			Help: "Embedding cache hits and misses",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(NudgeTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCost)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(BenchmarkRelevance)
	prometheus.MustRegister(ActiveStrategy)
	prometheus.MustRegister(EmbeddingCacheHits)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
