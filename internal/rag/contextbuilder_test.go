package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredChunks(scores ...int) []ScoredChunk {
	scored := make([]ScoredChunk, len(scores))
	for i, score := range scores {
		scored[i] = ScoredChunk{
			Chunk: Chunk{Text: string(rune('a' + i)), DocIndex: i},
			Score: score,
		}
	}
	return scored
}

func TestBuildSelectsThresholdChunks(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	built, ok := b.Build(scoredChunks(3, 9, 7, 1))

	require.True(t, ok)
	assert.True(t, built.HighConfidence)
	require.Len(t, built.Chunks, 2)
	assert.Equal(t, 9, built.Chunks[0].Score)
	assert.Equal(t, 7, built.Chunks[1].Score)
	assert.Equal(t, "b"+ContextSeparator+"c", built.Text)
}

func TestBuildFallsBackToTopChunks(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	built, ok := b.Build(scoredChunks(3, 5, 4, 6, 1))

	require.True(t, ok)
	assert.False(t, built.HighConfidence)
	require.Len(t, built.Chunks, 3)
	assert.Equal(t, 6, built.Chunks[0].Score)
	assert.Equal(t, 5, built.Chunks[1].Score)
	assert.Equal(t, 4, built.Chunks[2].Score)
}

func TestBuildFallbackRespectsNoiseFloor(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	built, ok := b.Build(scoredChunks(4, 2, 1, 0))

	require.True(t, ok)
	assert.False(t, built.HighConfidence)
	// Only the score-4 chunk clears the floor; 2 does not (strict >).
	require.Len(t, built.Chunks, 1)
	assert.Equal(t, 4, built.Chunks[0].Score)
}

func TestBuildFailsWhenEverythingIsNoise(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	_, ok := b.Build(scoredChunks(0, 0, 2, 1))

	assert.False(t, ok)
}

func TestZeroConfigKeepsNoiseFloor(t *testing.T) {
	b := NewContextBuilder(0, 0, 0)

	assert.Equal(t, 7, b.Threshold)
	assert.Equal(t, 2, b.NoiseFloor)
	assert.Equal(t, 3, b.FallbackChunks)

	// Score-2 chunks stay below the default floor even when the
	// builder was constructed from a zero-value config.
	_, ok := b.Build(scoredChunks(2, 1, 0))
	assert.False(t, ok)
}

func TestBuildPreservesOrderAmongTies(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	built, ok := b.Build(scoredChunks(8, 8, 8))

	require.True(t, ok)
	require.Len(t, built.Chunks, 3)
	assert.Equal(t, 0, built.Chunks[0].Chunk.DocIndex)
	assert.Equal(t, 1, built.Chunks[1].Chunk.DocIndex)
	assert.Equal(t, 2, built.Chunks[2].Chunk.DocIndex)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	scored := scoredChunks(1, 9, 5)
	_, _ = b.Build(scored)

	assert.Equal(t, 1, scored[0].Score)
	assert.Equal(t, 9, scored[1].Score)
	assert.Equal(t, 5, scored[2].Score)
}

func TestBuildJoinsWithSeparator(t *testing.T) {
	b := NewContextBuilder(7, 2, 3)

	built, ok := b.Build(scoredChunks(9, 8))

	require.True(t, ok)
	assert.Equal(t, 1, strings.Count(built.Text, ContextSeparator))
}
