package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/evaluation"
	"github.com/proactive-assistant/backend/internal/storage/models"
	"github.com/proactive-assistant/backend/internal/storage/sqlite"
	"github.com/proactive-assistant/backend/pkg/logger"
)

type EvaluateHandler struct {
	harness           *evaluation.Harness
	store             *sqlite.Client
	defaultVariations int
}

func NewEvaluateHandler(harness *evaluation.Harness, store *sqlite.Client, defaultVariations int) *EvaluateHandler {
	if defaultVariations <= 0 {
		defaultVariations = 1
	}
	return &EvaluateHandler{harness: harness, store: store, defaultVariations: defaultVariations}
}

// HandleEvaluate scores the pipeline against the golden set and returns
// per-example scores plus the aggregates.
func (h *EvaluateHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req struct {
		GoldenPath string `json:"golden_path"`
		Variations int    `json:"variations"`
	}

	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var golden []evaluation.GoldenExample
	var err error

	if req.GoldenPath != "" {
		golden, err = evaluation.LoadGoldenSet(req.GoldenPath)
		if err != nil {
			logger.Error("Failed to load golden set", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Failed to load golden set",
			})
		}
	} else {
		variations := req.Variations
		if variations <= 0 {
			variations = h.defaultVariations
		}
		golden = evaluation.DefaultGoldenSet(time.Now(), variations)
	}

	results := h.harness.Evaluate(c.Context(), golden)

	var scores []fiber.Map
	var sumComposite, sumSemantic, sumLexical float64
	scored, failed := 0, 0

	for {
		score, ok := results.Next()
		if !ok {
			break
		}

		if score.Err != nil {
			failed++
			scores = append(scores, fiber.Map{
				"example_id": score.ExampleID,
				"error":      score.Err.Error(),
			})
			continue
		}

		scored++
		sumComposite += score.Composite
		sumSemantic += score.Semantic
		sumLexical += score.Lexical.LCS.F1

		h.persistScore(score)

		scores = append(scores, fiber.Map{
			"example_id": score.ExampleID,
			"candidate":  score.Candidate,
			"semantic":   score.Semantic,
			"rouge1_f1":  score.Lexical.Unigram.F1,
			"rouge2_f1":  score.Lexical.Bigram.F1,
			"rougel_f1":  score.Lexical.LCS.F1,
			"composite":  score.Composite,
		})
	}

	response := fiber.Map{
		"examples": len(golden),
		"scored":   scored,
		"failed":   failed,
		"scores":   scores,
	}
	if scored > 0 {
		response["mean_composite"] = sumComposite / float64(scored)
		response["mean_semantic"] = sumSemantic / float64(scored)
		response["mean_lexical"] = sumLexical / float64(scored)
	}

	return c.JSON(response)
}

// GetScores returns persisted evaluation scores, newest first.
func (h *EvaluateHandler) GetScores(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Evaluation persistence is disabled",
		})
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := h.store.GetEvaluationScores(limit)
	if err != nil {
		logger.Error("Failed to load evaluation scores", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load evaluation scores",
		})
	}

	scores := make([]fiber.Map, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, fiber.Map{
			"example_id": row.ExampleID,
			"semantic":   row.Semantic,
			"rougel_f1":  row.RougeLF1,
			"composite":  row.Composite,
			"created_at": row.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"scores": scores})
}

func (h *EvaluateHandler) persistScore(score evaluation.Score) {
	if h.store == nil {
		return
	}

	row := &models.EvaluationRow{
		ExampleID: score.ExampleID,
		Candidate: score.Candidate,
		Semantic:  score.Semantic,
		Rouge1F1:  score.Lexical.Unigram.F1,
		Rouge2F1:  score.Lexical.Bigram.F1,
		RougeLF1:  score.Lexical.LCS.F1,
		Composite: score.Composite,
		CreatedAt: time.Now(),
	}

	if err := h.store.InsertEvaluationScore(row); err != nil {
		logger.Warn("Failed to persist evaluation score", zap.Error(err))
	}
}
