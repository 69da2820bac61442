package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rag/backend/internal/llm"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"7", 7},
		{"Score: 9", 9},
		{"  10  ", 10},
		{"I would rate this 8 out of 10", 8},
		{"15", 10},
		{"0", 0},
		{"not a number", 0},
		{"", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseScore(tt.content), "content=%q", tt.content)
	}
}

func TestRankScoresEveryChunkInOrder(t *testing.T) {
	completer := &fakeCompleter{fn: func(req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "fees") {
			return "9", nil
		}
		return "2", nil
	}}
	r := NewReranker(completer, 2)

	chunks := chunksFromTexts(
		"Semester 1 fees: 45000",
		"Campus event next week",
		"Revised fees circular",
	)

	scored, err := r.Rank(context.Background(), "what is the fee?", chunks)

	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, chunks[0].Text, scored[0].Chunk.Text)
	assert.Equal(t, 9, scored[0].Score)
	assert.Equal(t, 2, scored[1].Score)
	assert.Equal(t, 9, scored[2].Score)
}

func TestRankScoresZeroOnCallFailure(t *testing.T) {
	completer := &fakeCompleter{fn: func(req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "event") {
			return "", errors.New("backend down")
		}
		return "8", nil
	}}
	r := NewReranker(completer, 1)

	scored, err := r.Rank(context.Background(), "q", chunksFromTexts(
		"Semester 1 fees: 45000",
		"Campus event next week",
	))

	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 8, scored[0].Score)
	assert.Equal(t, 0, scored[1].Score)
}

func TestRankStopsOnCancelledContext(t *testing.T) {
	completer := &fakeCompleter{fn: func(llm.CompletionRequest) (string, error) {
		return "5", nil
	}}
	r := NewReranker(completer, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Rank(ctx, "q", chunksFromTexts("a", "b", "c"))

	assert.ErrorIs(t, err, context.Canceled)
}
