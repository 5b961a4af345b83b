package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// WebSocketHandler streams nudges word by word, the way a chat client
// renders them.
type WebSocketHandler struct {
	pipeline  *pipeline.Pipeline
	generator *snapshot.Generator
}

func NewWebSocketHandler(p *pipeline.Pipeline, generator *snapshot.Generator) *WebSocketHandler {
	return &WebSocketHandler{pipeline: p, generator: generator}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type string `json:"type"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "nudge" {
			continue
		}

		if err := h.streamNudge(c); err != nil {
			logger.Error("Failed to stream nudge", zap.Error(err))
			h.sendError(c, "Failed to produce nudge")
		}
	}
}

func (h *WebSocketHandler) streamNudge(c *websocket.Conn) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Generating nudge...")

	snap := h.generator.GenerateDay(time.Now())
	nudge, _, err := h.pipeline.Run(ctx, snap)
	if err != nil {
		return err
	}

	words := splitIntoWords(nudge.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"request_id": nudge.RequestID,
		"mood":       nudge.Assessment.Mood,
		"confidence": nudge.Assessment.Confidence,
		"cost_usd":   nudge.CostUSD,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
