package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/internal/storage/models"
	"github.com/proactive-assistant/backend/internal/storage/sqlite"
	"github.com/proactive-assistant/backend/pkg/logger"
)

type NudgeHandler struct {
	pipeline  *pipeline.Pipeline
	generator *snapshot.Generator
	store     *sqlite.Client
}

func NewNudgeHandler(p *pipeline.Pipeline, generator *snapshot.Generator, store *sqlite.Client) *NudgeHandler {
	return &NudgeHandler{
		pipeline:  p,
		generator: generator,
		store:     store,
	}
}

type recordPayload struct {
	Timestamp  time.Time          `json:"timestamp"`
	Text       string             `json:"text"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
}

type snapshotPayload struct {
	Calendar []recordPayload `json:"calendar"`
	Messages []recordPayload `json:"messages"`
	Activity []recordPayload `json:"activity"`
	Media    []recordPayload `json:"media"`
}

// HandleNudge runs the pipeline for one snapshot. A request without a
// snapshot gets a synthetic day from the generator.
func (h *NudgeHandler) HandleNudge(c *fiber.Ctx) error {
	var req struct {
		Snapshot *snapshotPayload `json:"snapshot"`
	}

	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var snap *snapshot.ContextSnapshot
	if req.Snapshot != nil {
		snap = buildSnapshot(req.Snapshot)
	} else {
		snap = h.generator.GenerateDay(time.Now())
	}

	start := time.Now()
	nudge, trace, err := h.pipeline.Run(c.Context(), snap)
	latencyMS := int(time.Since(start).Milliseconds())

	if err != nil {
		h.persistRun(snap.ID, nudge, trace, latencyMS, "error")
		logger.Error("Failed to produce nudge", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to produce nudge",
			"trace": traceJSON(trace),
		})
	}

	h.persistRun(snap.ID, nudge, trace, latencyMS, "success")

	return c.JSON(fiber.Map{
		"request_id":    nudge.RequestID,
		"nudge":         nudge.Text,
		"mood":          nudge.Assessment.Mood,
		"confidence":    nudge.Assessment.Confidence,
		"rationale":     nudge.Assessment.Rationale,
		"input_tokens":  nudge.InputTokens,
		"output_tokens": nudge.OutputTokens,
		"cost_usd":      nudge.CostUSD,
		"latency_ms":    latencyMS,
		"trace":         traceJSON(trace),
	})
}

// GetHistory returns recent runs, newest first.
func (h *NudgeHandler) GetHistory(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History persistence is disabled",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	records, err := h.store.GetRecentNudges(limit)
	if err != nil {
		logger.Error("Failed to load nudge history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		history = append(history, fiber.Map{
			"request_id": record.RequestID,
			"nudge":      record.NudgeText,
			"mood":       record.Mood,
			"status":     record.Status,
			"cost_usd":   record.CostUSD,
			"latency_ms": record.LatencyMS,
			"created_at": record.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"history": history})
}

// GetTrace returns the persisted stage trace for one request.
func (h *NudgeHandler) GetTrace(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History persistence is disabled",
		})
	}

	requestID := c.Params("id")
	if _, err := uuid.Parse(requestID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request id",
		})
	}

	rows, err := h.store.GetStageTraces(requestID)
	if err != nil {
		logger.Error("Failed to load stage trace", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load trace",
		})
	}
	if len(rows) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown request id",
		})
	}

	trace := make([]fiber.Map, 0, len(rows))
	for _, row := range rows {
		trace = append(trace, fiber.Map{
			"stage":       row.Stage,
			"duration_us": row.DurationUS,
			"outcome":     row.Outcome,
		})
	}

	return c.JSON(fiber.Map{"request_id": requestID, "trace": trace})
}

func (h *NudgeHandler) persistRun(snapshotID string, nudge *pipeline.Nudge, trace pipeline.StageTrace, latencyMS int, status string) {
	if h.store == nil {
		return
	}

	record := &models.NudgeRecord{
		SnapshotID: snapshotID,
		LatencyMS:  latencyMS,
		Status:     status,
		CreatedAt:  time.Now(),
	}

	if nudge != nil {
		record.RequestID = nudge.RequestID
		record.NudgeText = nudge.Text
		record.Mood = nudge.Assessment.Mood
		record.Confidence = nudge.Assessment.Confidence
		record.Rationale = nudge.Assessment.Rationale
		record.InputTokens = nudge.InputTokens
		record.OutputTokens = nudge.OutputTokens
		record.CostUSD = nudge.CostUSD
	} else {
		record.RequestID = uuid.New().String()
	}

	rows := make([]models.StageTraceRow, 0, len(trace))
	for i, entry := range trace {
		rows = append(rows, models.StageTraceRow{
			RequestID:  record.RequestID,
			StageIndex: i,
			Stage:      entry.Stage,
			DurationUS: entry.Duration.Microseconds(),
			Outcome:    string(entry.Outcome),
		})
	}

	if err := h.store.InsertNudge(record, rows); err != nil {
		logger.Warn("Failed to persist nudge run", zap.Error(err))
	}
}

func buildSnapshot(payload *snapshotPayload) *snapshot.ContextSnapshot {
	snap := &snapshot.ContextSnapshot{
		ID:      uuid.New().String(),
		TakenAt: time.Now(),
	}

	snap.Calendar = buildRecords(payload.Calendar, snapshot.CategoryCalendar)
	snap.Messages = buildRecords(payload.Messages, snapshot.CategoryMessage)
	snap.Activity = buildRecords(payload.Activity, snapshot.CategoryActivity)
	snap.Media = buildRecords(payload.Media, snapshot.CategoryMedia)
	return snap
}

func buildRecords(payloads []recordPayload, category snapshot.Category) []snapshot.ContextRecord {
	records := make([]snapshot.ContextRecord, 0, len(payloads))
	for _, p := range payloads {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		records = append(records, snapshot.ContextRecord{
			Timestamp:  ts,
			Category:   category,
			Text:       p.Text,
			Attributes: p.Attributes,
		})
	}
	return records
}

func traceJSON(trace pipeline.StageTrace) []fiber.Map {
	out := make([]fiber.Map, 0, len(trace))
	for _, entry := range trace {
		out = append(out, fiber.Map{
			"stage":       entry.Stage,
			"duration_us": entry.Duration.Microseconds(),
			"outcome":     string(entry.Outcome),
		})
	}
	return out
}
