package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/pkg/logger"
)

const (
	strictAnswerPrompt = `You are a precise and helpful assistant. Synthesize a direct and concise answer to the user's question based *only* on the highly relevant context provided below.`

	hedgedAnswerPrompt = `You are a helpful assistant. The provided context contains the best available clues, but may not be a perfect answer. Synthesize the most likely answer to the user's question based *only* on the context. If you cannot, state that you found related information but not a specific answer.`

	optimizeQueryPrompt = `You are a query optimization assistant. Your task is to rephrase the user's question to be more effective for a vector database search. Focus on keywords and clarity. Respond only with the rephrased question.`
)

// Generator produces the final grounded answer from assembled context,
// and can rewrite a question for better retrieval.
type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate answers the question from the given context only. The system
// prompt is strict when the context is high confidence and hedged
// otherwise. A deterministic sources footer is appended from the
// deduplicated filenames, preserving their order. Backend errors
// propagate so the orchestrator can return a degraded-service message.
func (g *Generator) Generate(ctx context.Context, question, contextText string, sources []string, highConfidence bool) (string, error) {
	systemPrompt := hedgedAnswerPrompt
	if highConfidence {
		systemPrompt = strictAnswerPrompt
	}

	userPrompt := fmt.Sprintf("Context:\n===\n%s\n===\n\nQuestion: %s", contextText, question)

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Info("Answer generated",
		zap.Bool("high_confidence", highConfidence),
		zap.Int("answer_length", len(resp.Content)),
	)

	return resp.Content + sourcesFooter(sources), nil
}

// OptimizeQuery rewrites the question for retrieval. On any failure the
// original question is returned unchanged.
func (g *Generator) OptimizeQuery(ctx context.Context, question string) string {
	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: optimizeQueryPrompt,
		UserPrompt:   fmt.Sprintf("Rephrase this question: '%s'", question),
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil {
		logger.Warn("Query optimization failed, using original question", zap.Error(err))
		return question
	}

	optimized := strings.TrimSpace(resp.Content)
	if optimized == "" {
		return question
	}

	logger.Debug("Query optimized",
		zap.String("original", question),
		zap.String("optimized", optimized),
	)
	return optimized
}

// DedupeSources collects filenames from contributing chunks, dropping
// duplicates while preserving first-seen order.
func DedupeSources(chunks []ScoredChunk) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, sc := range chunks {
		filename := sc.Chunk.Source.Filename
		if filename == "" || seen[filename] {
			continue
		}
		seen[filename] = true
		sources = append(sources, filename)
	}
	return sources
}

func sourcesFooter(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n---\nSources consulted:\n")
	for _, source := range sources {
		sb.WriteString("  - ")
		sb.WriteString(source)
		sb.WriteString("\n")
	}
	return sb.String()
}
