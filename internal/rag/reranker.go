package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/pkg/logger"
)

var integerPattern = regexp.MustCompile(`\d+`)

// Reranker scores each candidate chunk's relevance to the question on a
// 0-10 scale, one language-model call per chunk. Calls fan out
// concurrently up to Concurrency; a failed or unparseable call scores 0
// rather than aborting the batch.
type Reranker struct {
	completer   Completer
	concurrency int
}

func NewReranker(completer Completer, concurrency int) *Reranker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Reranker{completer: completer, concurrency: concurrency}
}

// Rank scores all chunks and returns them paired with their scores in
// the original order. The only error it returns is context
// cancellation; per-chunk failures degrade to score 0.
func (r *Reranker) Rank(ctx context.Context, question string, chunks []Chunk) ([]ScoredChunk, error) {
	scored := make([]ScoredChunk, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scored[i] = ScoredChunk{Chunk: chunk, Score: r.scoreChunk(ctx, question, chunk.Text)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("Chunks reranked", zap.Int("count", len(scored)))
	return scored, nil
}

func (r *Reranker) scoreChunk(ctx context.Context, question, chunk string) int {
	systemPrompt := fmt.Sprintf(`As a relevance expert, score the 'Context Chunk' from 1-10 based on how likely it is to contain a direct answer to the 'User's Question'. Respond with only a single number. User's Question: %s`, question)

	resp, err := r.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Context Chunk:\n---\n%s", chunk),
		Temperature:  0.1,
		MaxTokens:    10,
	})
	if err != nil {
		logger.Debug("Rerank call failed, scoring 0", zap.Error(err))
		return 0
	}

	return ParseScore(resp.Content)
}

// ParseScore extracts the first integer literal from a model response
// and clamps it to [0,10]. No integer means 0.
func ParseScore(content string) int {
	match := integerPattern.FindString(content)
	if match == "" {
		return 0
	}
	score, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
