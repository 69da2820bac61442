package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxQuestionLength int
	MaxDocumentSize   int
	// Scope value whitelists; empty slices disable the check for that
	// field. The wildcard "ALL" is always accepted.
	Batches       []string
	Branches      []string
	Semesters     []string
	DocumentTypes []string
	Logger        *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 5000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		path := c.Path()

		if strings.HasSuffix(path, "/query") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			question, ok := req["question"].(string)
			if !ok || strings.TrimSpace(question) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Question is required and must be a string",
				})
			}

			if len(question) > cfg.MaxQuestionLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Question exceeds maximum length",
				})
			}

			if xssPattern.MatchString(question) {
				cfg.Logger.Warn("Rejected suspicious question content",
					zap.String("ip", c.IP()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid question content",
				})
			}

			if msg := validateScope(req, cfg); msg != "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}
		}

		if strings.HasSuffix(path, "/documents") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			text, _ := req["text"].(string)
			html, _ := req["html"].(string)
			if len(text) > cfg.MaxDocumentSize || len(html) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document content exceeds maximum size",
				})
			}

			if msg := validateScope(req, cfg); msg != "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}
		}

		return c.Next()
	}
}

func validateScope(req map[string]interface{}, cfg Config) string {
	checks := []struct {
		field   string
		allowed []string
	}{
		{"batch", cfg.Batches},
		{"branch", cfg.Branches},
		{"semester", cfg.Semesters},
		{"document_type", cfg.DocumentTypes},
	}

	for _, check := range checks {
		value, ok := req[check.field].(string)
		if !ok || value == "" || strings.EqualFold(value, "ALL") {
			continue
		}
		if len(check.allowed) == 0 {
			continue
		}
		if !contains(check.allowed, value) {
			return "Unknown " + check.field + ": " + value
		}
	}

	return ""
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
