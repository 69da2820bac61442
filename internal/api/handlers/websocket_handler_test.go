package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/internal/vector"
)

type frameRecorder struct {
	frames []map[string]interface{}
}

func (r *frameRecorder) WriteJSON(v interface{}) error {
	r.frames = append(r.frames, v.(map[string]interface{}))
	return nil
}

func (r *frameRecorder) lastFrame() map[string]interface{} {
	return r.frames[len(r.frames)-1]
}

type contextAwareEmbedder struct{}

func (contextAwareEmbedder) GenerateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{1, 0}, nil
}

func TestStreamResponseEmitsChunksAndComplete(t *testing.T) {
	pipeline := rag.NewPipeline(contextAwareEmbedder{}, stubSearcher{results: []vector.Result{{
		Text:     "Semester 1 fee is 45000.",
		Metadata: vector.Metadata{Filename: "fees.pdf", Batch: "2023-2027"},
	}}}, stubCompleter{}, rag.Config{Deep: true})
	handler := NewWebSocketHandler(pipeline)

	conn := &frameRecorder{}
	err := handler.streamResponse(context.Background(), conn, rag.Request{
		Question: "What is the fee for semester 1?",
		Scope:    rag.Scope{Batch: "2023-2027"},
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(conn.frames), 3)
	assert.Equal(t, "status", conn.frames[0]["type"])
	assert.Equal(t, "chunk", conn.frames[1]["type"])

	complete := conn.lastFrame()
	assert.Equal(t, "complete", complete["type"])
	assert.Equal(t, "answered", complete["outcome"])
}

func TestStreamResponseStopsWhenConnectionContextCancelled(t *testing.T) {
	pipeline := rag.NewPipeline(contextAwareEmbedder{}, stubSearcher{results: []vector.Result{{
		Text:     "Semester 1 fee is 45000.",
		Metadata: vector.Metadata{Filename: "fees.pdf", Batch: "2023-2027"},
	}}}, stubCompleter{}, rag.Config{Deep: true})
	handler := NewWebSocketHandler(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &frameRecorder{}
	err := handler.streamResponse(ctx, conn, rag.Request{
		Question: "What is the fee for semester 1?",
		Scope:    rag.Scope{Batch: "2023-2027"},
	})
	require.NoError(t, err)

	complete := conn.lastFrame()
	assert.Equal(t, "complete", complete["type"])
	assert.Equal(t, "error", complete["outcome"])
}
