package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/pkg/logger"
)

// WebSocketHandler serves the chat transport: query frames in,
// word-chunked answer frames out, over the same pipeline as the HTTP
// endpoint.
type WebSocketHandler struct {
	pipeline *rag.Pipeline
}

func NewWebSocketHandler(pipeline *rag.Pipeline) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline: pipeline,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	// The connection context ends with the read loop, so a client that
	// disconnects mid-answer cancels the pipeline run.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type         string `json:"type"`
			Question     string `json:"question"`
			Batch        string `json:"batch"`
			Branch       string `json:"branch"`
			Semester     string `json:"semester"`
			DocumentType string `json:"document_type"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("question", msg.Question))

		req := rag.Request{
			Question: msg.Question,
			Scope: rag.Scope{
				Batch:        msg.Batch,
				Branch:       msg.Branch,
				Semester:     msg.Semester,
				DocumentType: msg.DocumentType,
			},
		}

		err = h.streamResponse(ctx, c, req)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

// jsonWriter is the slice of the websocket connection streamResponse
// needs to emit frames.
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c jsonWriter, req rag.Request) error {
	h.sendChunk(c, "status", "Searching documents...")

	result := h.pipeline.Process(ctx, req)

	words := splitIntoWords(result.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		err := h.sendChunk(c, "chunk", chunk)
		if err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c jsonWriter, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c jsonWriter, result rag.Response) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"outcome":    string(result.Outcome),
		"sources":    result.Sources,
		"confidence": confidenceLabel(result),
		"broadened":  result.Broadened,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c jsonWriter, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
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
