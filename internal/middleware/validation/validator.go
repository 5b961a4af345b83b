package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxRecordTextLength int
	MaxRecordsPerStream int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware enforces body shape limits on the nudge endpoint before the
// handler parses the snapshot for real.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxRecordTextLength == 0 {
		cfg.MaxRecordTextLength = 2000
	}
	if cfg.MaxRecordsPerStream == 0 {
		cfg.MaxRecordsPerStream = 200
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !contentTypeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.Contains(c.Path(), "/api/v1/nudge") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			snapshot, ok := req["snapshot"].(map[string]interface{})
			if !ok {
				// Synthetic requests carry no snapshot; the handler generates one.
				return c.Next()
			}

			for stream, value := range snapshot {
				records, ok := value.([]interface{})
				if !ok {
					continue
				}

				if len(records) > cfg.MaxRecordsPerStream {
					cfg.Logger.Warn("Oversized snapshot stream rejected",
						zap.String("ip", c.IP()),
						zap.String("stream", stream),
						zap.Int("records", len(records)),
					)
					return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
						"error": "Snapshot stream exceeds maximum record count",
					})
				}

				for _, record := range records {
					fields, ok := record.(map[string]interface{})
					if !ok {
						continue
					}
					if text, ok := fields["text"].(string); ok && len(text) > cfg.MaxRecordTextLength {
						return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
							"error": "Record text exceeds maximum length",
						})
					}
				}
			}
		}

		return c.Next()
	}
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}
