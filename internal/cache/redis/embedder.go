package redis

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-rag/backend/pkg/logger"
	"github.com/campus-rag/backend/pkg/utils"
)

// Embedder is the embedding surface CachingEmbedder wraps.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CachingEmbedder memoizes embeddings in Redis, keyed by the SHA-256 of
// the text. Cache failures fall through to the inner embedder.
type CachingEmbedder struct {
	inner Embedder
	cache *Client
}

func NewCachingEmbedder(inner Embedder, cache *Client) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache}
}

func (e *CachingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	textHash := utils.HashString(text)

	embedding, found, err := e.cache.GetEmbedding(ctx, textHash)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	}
	if found {
		return embedding, nil
	}

	embedding, err = e.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, textHash, embedding); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}
