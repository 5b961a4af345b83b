package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/proactive-assistant/backend/internal/metrics"
)

type MetricsHandler struct {
	recorder *metrics.Recorder
}

func NewMetricsHandler(recorder *metrics.Recorder) *MetricsHandler {
	return &MetricsHandler{recorder: recorder}
}

// GetSummary exposes the recorder's aggregate latency and cost statistics.
func (h *MetricsHandler) GetSummary(c *fiber.Ctx) error {
	summary := h.recorder.Summarize()

	perStage := make(fiber.Map, len(summary.PerStageMean))
	for stage, mean := range summary.PerStageMean {
		perStage[stage] = float64(mean.Microseconds()) / 1000.0
	}

	return c.JSON(fiber.Map{
		"samples":         summary.SampleCount,
		"mean_latency_ms": float64(summary.MeanLatency.Microseconds()) / 1000.0,
		"p50_latency_ms":  float64(summary.P50Latency.Microseconds()) / 1000.0,
		"p95_latency_ms":  float64(summary.P95Latency.Microseconds()) / 1000.0,
		"p99_latency_ms":  float64(summary.P99Latency.Microseconds()) / 1000.0,
		"per_stage_mean_ms": perStage,

		"cost_entries":        summary.CostEntries,
		"total_cost_usd":      summary.TotalCost,
		"mean_cost_usd":       summary.MeanCost,
		"total_input_tokens":  summary.TotalInputTokens,
		"total_output_tokens": summary.TotalOutputTokens,
	})
}
