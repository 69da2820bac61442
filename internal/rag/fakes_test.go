package rag

import (
	"context"
	"sync"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/internal/vector"
)

// fakeCompleter routes every completion through a single function so a
// test can answer differently per stage prompt. Safe for the reranker's
// concurrent calls.
type fakeCompleter struct {
	fn func(req llm.CompletionRequest) (string, error)

	mu    sync.Mutex
	calls []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	content, err := f.fn(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type searchCall struct {
	partitions []string
	filterExpr string
	topK       int
}

type fakeSearcher struct {
	fn    func(partitions []string, filterExpr string, topK int) ([]vector.Result, error)
	calls []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, partitions []string, filterExpr string, _ []float32, topK int) ([]vector.Result, error) {
	f.calls = append(f.calls, searchCall{partitions: partitions, filterExpr: filterExpr, topK: topK})
	return f.fn(partitions, filterExpr, topK)
}
