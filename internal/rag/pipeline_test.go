package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/internal/vector"
)

const feesNoticeText = "Semester 1 fees: ₹45,000 due by August 15.\n\nLate payment attracts a penalty of ₹500 per week."

func feesNoticeResult() vector.Result {
	return vector.Result{
		Text: feesNoticeText,
		Metadata: vector.Metadata{
			ChunkID:      "doc1_chunk_0",
			Filename:     "fees_notice_2023.pdf",
			Title:        "Fees Notice",
			Batch:        "2023-2027",
			Branch:       "Computer Engineering",
			Semester:     "Semester 1",
			DocumentType: "FeesNotice",
		},
		Distance: 0.92,
	}
}

// stageCompleter answers each pipeline stage by its prompt: a fixed
// query analysis, a passthrough rewrite, relevance scores keyed on the
// chunk content, and a grounded answer.
func stageCompleter(scoreFor func(chunk string) int) *fakeCompleter {
	return &fakeCompleter{fn: func(req llm.CompletionRequest) (string, error) {
		switch {
		case req.SystemPrompt == analyzerSystemPrompt:
			return `{"keywords": ["fee", "fees", "semester", "1"], "entities": ["semester 1"]}`, nil
		case req.SystemPrompt == optimizeQueryPrompt:
			return "semester 1 fee amount", nil
		case strings.HasPrefix(req.SystemPrompt, "As a relevance expert"):
			return fmt.Sprintf("%d", scoreFor(req.UserPrompt)), nil
		case req.SystemPrompt == strictAnswerPrompt || req.SystemPrompt == hedgedAnswerPrompt:
			return "The fee for semester 1 is ₹45,000, due by August 15.", nil
		}
		return "", fmt.Errorf("unexpected prompt: %q", req.SystemPrompt)
	}}
}

func feesScore(userPrompt string) int {
	if strings.Contains(userPrompt, "₹45,000") {
		return 9
	}
	return 1
}

func testConfig() Config {
	return Config{
		TopK:               5,
		RelevanceThreshold: 7,
		NoiseFloor:         2,
		FallbackChunks:     3,
		RerankConcurrency:  2,
		ChunkSize:          1000,
		LongSegment:        1500,
		Deep:               true,
	}
}

func feesRequest() Request {
	return Request{
		Question: "What is the fee for semester 1?",
		Scope: Scope{
			Batch:        "2023-2027",
			Branch:       "ALL",
			Semester:     "1",
			DocumentType: "FeesNotice",
		},
	}
}

func TestProcessAnswersScopedFeeQuestion(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return []vector.Result{feesNoticeResult()}, nil
	}}
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1, 0.2}}, searcher, stageCompleter(feesScore), testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.True(t, resp.HighConfidence)
	assert.False(t, resp.Broadened)
	assert.Contains(t, resp.Answer, "₹45,000")
	assert.Equal(t, []string{"fees_notice_2023.pdf"}, resp.Sources)
	assert.Equal(t, 1, strings.Count(resp.Answer, "fees_notice_2023.pdf"))

	require.Len(t, searcher.calls, 1)
	assert.Equal(t, []string{"batch_2023_2027", "all_batches"}, searcher.calls[0].partitions)
	assert.Equal(t, `semester == "Semester 1" && document_type == "FeesNotice"`, searcher.calls[0].filterExpr)
}

func TestProcessBroadensWhenDocumentTypeMisses(t *testing.T) {
	searcher := &fakeSearcher{fn: func(_ []string, filterExpr string, _ int) ([]vector.Result, error) {
		if strings.Contains(filterExpr, "document_type") {
			return nil, nil
		}
		result := feesNoticeResult()
		result.Metadata.DocumentType = "Circular"
		return []vector.Result{result}, nil
	}}
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, stageCompleter(feesScore), testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.True(t, resp.Broadened)
	assert.True(t, strings.HasPrefix(resp.Answer, "I couldn't find a specific 'FeesNotice' document"))
	assert.Contains(t, resp.Answer, "₹45,000")

	require.Len(t, searcher.calls, 2)
	assert.NotContains(t, searcher.calls[1].filterExpr, "document_type")
}

func TestProcessReportsNoResults(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return nil, nil
	}}
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, stageCompleter(feesScore), testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeNoResults, resp.Outcome)
	assert.True(t, resp.Broadened)
	assert.Contains(t, resp.Answer, "broad search")
	assert.Empty(t, resp.Sources)
}

func TestProcessReportsScopeNotFound(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return nil, fmt.Errorf("%w: batch_2030_2034", vector.ErrPartitionNotFound)
	}}
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, stageCompleter(feesScore), testConfig())

	req := feesRequest()
	req.Scope.Batch = "2030-2034"
	resp := p.Process(context.Background(), req)

	assert.Equal(t, OutcomeScopeNotFound, resp.Outcome)
	assert.Contains(t, resp.Answer, "2030-2034")
}

func TestProcessNoResultsWhenNothingScoresAboveNoise(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return []vector.Result{feesNoticeResult()}, nil
	}}
	completer := stageCompleter(func(string) int { return 0 })
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, completer, testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeNoResults, resp.Outcome)
	assert.Contains(t, resp.Answer, "detailed analysis")
	assert.Contains(t, resp.Answer, "fees_notice_2023.pdf")
}

func TestProcessNoResultsWhenNoChunkMatchesLexically(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		result := feesNoticeResult()
		result.Text = "Campus placement drive scheduled for October."
		return []vector.Result{result}, nil
	}}
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, stageCompleter(feesScore), testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeNoResults, resp.Outcome)
	assert.Contains(t, resp.Answer, "fees_notice_2023.pdf")
}

func TestProcessDegradesOnEmbeddingFailure(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		t.Fatal("search should not run when embedding fails")
		return nil, nil
	}}
	p := NewPipeline(&fakeEmbedder{err: errors.New("backend down")}, searcher, stageCompleter(feesScore), testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeError, resp.Outcome)
	assert.Contains(t, resp.Answer, "temporarily unavailable")
}

func TestProcessSimpleModeSkipsAnalysisAndReranking(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return []vector.Result{feesNoticeResult()}, nil
	}}
	completer := stageCompleter(feesScore)
	cfg := testConfig()
	cfg.Deep = false
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, completer, cfg)

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.True(t, resp.HighConfidence)
	assert.Equal(t, []string{"fees_notice_2023.pdf"}, resp.Sources)

	// Single-pass depth makes exactly one model call, the answer.
	require.Len(t, completer.calls, 1)
	assert.Equal(t, strictAnswerPrompt, completer.calls[0].SystemPrompt)
}

func TestProcessUsesFallbackContextWithHedgedPrompt(t *testing.T) {
	searcher := &fakeSearcher{fn: func([]string, string, int) ([]vector.Result, error) {
		return []vector.Result{feesNoticeResult()}, nil
	}}
	completer := stageCompleter(func(string) int { return 4 })
	p := NewPipeline(&fakeEmbedder{vec: []float32{0.1}}, searcher, completer, testConfig())

	resp := p.Process(context.Background(), feesRequest())

	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.False(t, resp.HighConfidence)

	var sawHedged bool
	for _, call := range completer.calls {
		if call.SystemPrompt == hedgedAnswerPrompt {
			sawHedged = true
		}
	}
	assert.True(t, sawHedged)
}
