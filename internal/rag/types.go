package rag

import (
	"context"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/internal/vector"
)

// Completer is the language-model surface the pipeline stages consume.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Embedder turns text into a unit-length vector. *llm.Client satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// QueryAnalysis is the decomposition of a question into lowercase
// keyword tokens and casing-preserved entity phrases. Produced once per
// query and consumed read-only by the candidate filter.
type QueryAnalysis struct {
	Keywords []string `json:"keywords"`
	Entities []string `json:"entities"`
}

// Chunk is a bounded passage of a retrieved document, tagged with the
// metadata of the document it came from. Ephemeral per query.
type Chunk struct {
	Text     string
	Source   vector.Metadata
	DocIndex int
}

// ScoredChunk pairs a chunk with its 0-10 relevance score.
type ScoredChunk struct {
	Chunk Chunk
	Score int
}

// Outcome classifies how a pipeline invocation terminated.
type Outcome string

const (
	// OutcomeAnswered means a grounded answer was generated.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoResults means retrieval or filtering found nothing usable.
	// A legitimate negative result, not an error.
	OutcomeNoResults Outcome = "no_results"
	// OutcomeScopeNotFound means the requested index partition does not exist.
	OutcomeScopeNotFound Outcome = "scope_not_found"
	// OutcomeError means a backend was unavailable after all fallbacks.
	OutcomeError Outcome = "error"
)

// Request is one stateless question against a scope.
type Request struct {
	Question string
	Scope    Scope
	TopK     int
}

// Response is the pipeline's terminal result. Answer carries either the
// grounded answer (with sources footer) or a plain-language explanation
// of why none could be produced. Sources holds deduplicated filenames of
// chunks that contributed to the final context, in first-seen order.
type Response struct {
	Outcome        Outcome
	Answer         string
	Sources        []string
	HighConfidence bool
	Broadened      bool
}
