package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/cache/redis"
	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/pkg/logger"
	"github.com/campus-rag/backend/pkg/utils"
)

type QueryHandler struct {
	pipeline *rag.Pipeline
	cache    *redis.Client
}

// NewQueryHandler wires the pipeline and an optional answer cache
// (nil disables caching).
func NewQueryHandler(pipeline *rag.Pipeline, cache *redis.Client) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		cache:    cache,
	}
}

type queryRequest struct {
	Question     string `json:"question"`
	Batch        string `json:"batch"`
	Branch       string `json:"branch"`
	Semester     string `json:"semester"`
	DocumentType string `json:"document_type"`
	Limit        int    `json:"limit"`
}

type queryResponse struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Outcome    string   `json:"outcome"`
	Confidence string   `json:"confidence"`
	Broadened  bool     `json:"broadened"`
	LatencyMS  int      `json:"latency_ms"`
	Cached     bool     `json:"cached"`
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	scope := rag.Scope{
		Batch:        req.Batch,
		Branch:       req.Branch,
		Semester:     req.Semester,
		DocumentType: req.DocumentType,
	}

	queryHash := utils.HashString(req.Question + "|" + scope.String())
	if h.cache != nil {
		var cached queryResponse
		found, err := h.cache.GetAnswer(c.Context(), queryHash, &cached)
		if err != nil {
			logger.Warn("Answer cache read failed", zap.Error(err))
		}
		if found {
			cached.Cached = true
			return c.JSON(cached)
		}
	}

	start := time.Now()
	result := h.pipeline.Process(c.Context(), rag.Request{
		Question: req.Question,
		Scope:    scope,
		TopK:     req.Limit,
	})

	resp := queryResponse{
		ID:         uuid.New().String(),
		Question:   req.Question,
		Answer:     result.Answer,
		Sources:    result.Sources,
		Outcome:    string(result.Outcome),
		Confidence: confidenceLabel(result),
		Broadened:  result.Broadened,
		LatencyMS:  int(time.Since(start).Milliseconds()),
	}

	switch result.Outcome {
	case rag.OutcomeScopeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(resp)
	case rag.OutcomeError:
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}

	if h.cache != nil && result.Outcome == rag.OutcomeAnswered {
		if err := h.cache.SetAnswer(c.Context(), queryHash, resp); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	return c.JSON(resp)
}

func confidenceLabel(result rag.Response) string {
	if result.Outcome != rag.OutcomeAnswered {
		return "none"
	}
	if result.HighConfidence {
		return "high"
	}
	return "low"
}
