package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/ingestion"
	"github.com/campus-rag/backend/internal/storage/sqlite"
	"github.com/campus-rag/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	registry  *sqlite.Client
}

func NewDocumentHandler(processor *ingestion.Processor, registry *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		registry:  registry,
	}
}

// IndexDocument accepts already-extracted document text (or raw HTML to
// be normalized) plus its scope, and commits it to the vector index.
// File parsing and OCR happen upstream; this endpoint takes text only.
func (h *DocumentHandler) IndexDocument(c *fiber.Ctx) error {
	var req struct {
		Text         string `json:"text"`
		HTML         string `json:"html"`
		Filename     string `json:"filename"`
		Title        string `json:"title"`
		Batch        string `json:"batch"`
		Branch       string `json:"branch"`
		Semester     string `json:"semester"`
		DocumentType string `json:"document_type"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" && req.HTML == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Either text or html content is required",
		})
	}
	if req.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Filename is required",
		})
	}

	result, err := h.processor.IndexDocument(c.Context(), ingestion.IndexRequest{
		Text:         req.Text,
		HTML:         req.HTML,
		Filename:     req.Filename,
		Title:        req.Title,
		Batch:        req.Batch,
		Branch:       req.Branch,
		Semester:     req.Semester,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		logger.Error("Failed to index document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index document",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Document indexed successfully",
		"document_id": result.DocumentID,
		"chunks":      result.Chunks,
		"copies":      result.Copies,
		"skipped":     result.Skipped,
	})
}

// ListDocuments returns registry rows, optionally narrowed by batch
// and document type.
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	batch := c.Query("batch")
	documentType := c.Query("document_type")
	limit := c.QueryInt("limit", 100)

	docs, err := h.registry.ListDocuments(batch, documentType, limit)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	items := make([]fiber.Map, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fiber.Map{
			"id":            doc.ID,
			"filename":      doc.Filename,
			"title":         doc.Title,
			"batch":         doc.Batch,
			"branch":        doc.Branch,
			"semester":      doc.Semester,
			"document_type": doc.DocumentType,
			"chunk_count":   doc.ChunkCount,
			"created_at":    doc.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"documents": items,
		"count":     len(items),
	})
}
