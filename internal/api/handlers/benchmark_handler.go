package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/selector"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/internal/storage/models"
	"github.com/proactive-assistant/backend/internal/storage/sqlite"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// defaultBenchmarkProbes covers the scenario space the assistant sees in a
// typical day.
var defaultBenchmarkProbes = []string{
	"feeling stressed about a deadline",
	"preparing for an upcoming meeting",
	"recovering after a workout",
	"music for relaxation",
	"low energy in the afternoon",
}

type BenchmarkHandler struct {
	selector     *selector.Selector
	generator    *snapshot.Generator
	store        *sqlite.Client
	runsPerQuery int
}

func NewBenchmarkHandler(sel *selector.Selector, generator *snapshot.Generator, store *sqlite.Client, runsPerQuery int) *BenchmarkHandler {
	return &BenchmarkHandler{
		selector:     sel,
		generator:    generator,
		store:        store,
		runsPerQuery: runsPerQuery,
	}
}

// HandleBenchmark re-runs the strategy benchmark and installs the winner.
func (h *BenchmarkHandler) HandleBenchmark(c *fiber.Ctx) error {
	var req struct {
		Probes       []string `json:"probes"`
		RunsPerQuery int      `json:"runs_per_query"`
	}

	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	probes := req.Probes
	if len(probes) == 0 {
		probes = defaultBenchmarkProbes
	}

	runsPerQuery := req.RunsPerQuery
	if runsPerQuery <= 0 {
		runsPerQuery = h.runsPerQuery
	}

	queries := make([]retrieval.Query, 0, len(probes))
	for _, probe := range probes {
		queries = append(queries, retrieval.Query{Probe: probe})
	}

	snap := h.generator.GenerateDay(time.Now())

	result, err := h.selector.RunBenchmark(c.Context(), snap, queries, runsPerQuery)
	if err != nil {
		logger.Error("Benchmark failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Benchmark failed",
		})
	}

	h.persistBenchmark(result)

	return c.JSON(benchmarkJSON(result))
}

// GetBenchmarks returns past benchmark decisions, newest first.
func (h *BenchmarkHandler) GetBenchmarks(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Benchmark persistence is disabled",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	records, err := h.store.GetRecentBenchmarks(limit)
	if err != nil {
		logger.Error("Failed to load benchmarks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load benchmarks",
		})
	}

	runs := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		runs = append(runs, fiber.Map{
			"chosen":               record.Chosen,
			"margin":               record.Margin,
			"semantic_relevance":   record.SemanticRelevance,
			"structured_relevance": record.StructuredRelevance,
			"decided_at":           record.DecidedAt,
		})
	}

	return c.JSON(fiber.Map{"benchmarks": runs})
}

// GetActiveStrategy reports the current decision without re-benchmarking.
func (h *BenchmarkHandler) GetActiveStrategy(c *fiber.Ctx) error {
	response := fiber.Map{
		"active": h.selector.Active().Name(),
	}

	if last := h.selector.LastResult(); last != nil {
		response["last_benchmark"] = benchmarkJSON(last)
	}

	return c.JSON(response)
}

func (h *BenchmarkHandler) persistBenchmark(result *selector.Result) {
	if h.store == nil {
		return
	}

	record := &models.BenchmarkRecord{
		Chosen:              result.Chosen,
		Margin:              result.Margin,
		SemanticRelevance:   result.Semantic.MeanTopRelevance,
		SemanticLatencyMS:   float64(result.Semantic.MeanLatency.Microseconds()) / 1000.0,
		SemanticSamples:     result.Semantic.Samples,
		SemanticErrors:      result.Semantic.Errors,
		StructuredRelevance: result.Structured.MeanTopRelevance,
		StructuredLatencyMS: float64(result.Structured.MeanLatency.Microseconds()) / 1000.0,
		StructuredSamples:   result.Structured.Samples,
		StructuredErrors:    result.Structured.Errors,
		DecidedAt:           result.DecidedAt,
	}

	if err := h.store.InsertBenchmark(record); err != nil {
		logger.Warn("Failed to persist benchmark", zap.Error(err))
	}
}

func benchmarkJSON(result *selector.Result) fiber.Map {
	return fiber.Map{
		"chosen": result.Chosen,
		"margin": result.Margin,
		"semantic": fiber.Map{
			"samples":            result.Semantic.Samples,
			"errors":             result.Semantic.Errors,
			"mean_latency_ms":    float64(result.Semantic.MeanLatency.Microseconds()) / 1000.0,
			"mean_top_relevance": result.Semantic.MeanTopRelevance,
			"disqualified":       result.Semantic.Disqualified,
		},
		"structured": fiber.Map{
			"samples":            result.Structured.Samples,
			"errors":             result.Structured.Errors,
			"mean_latency_ms":    float64(result.Structured.MeanLatency.Microseconds()) / 1000.0,
			"mean_top_relevance": result.Structured.MeanTopRelevance,
			"disqualified":       result.Structured.Disqualified,
		},
		"decided_at": result.DecidedAt,
	}
}
