package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/metrics"
	"github.com/campus-rag/backend/internal/vector"
	"github.com/campus-rag/backend/pkg/logger"
)

// State identifies a stage of one pipeline invocation.
type State string

const (
	StateAnalyzing       State = "ANALYZING"
	StateRetrieving      State = "RETRIEVING"
	StateRetryBroadened  State = "RETRY_BROADENED"
	StateFiltering       State = "FILTERING"
	StateRetryRelaxed    State = "RETRY_RELAXED"
	StateReranking       State = "RERANKING"
	StateContextBuilding State = "CONTEXT_BUILDING"
	StateGenerating      State = "GENERATING"
	StateDone            State = "DONE"
	StateNoResults       State = "NO_RESULTS"
	StateError           State = "ERROR"
)

const degradedServiceMessage = "The answering service is temporarily unavailable. Please try again in a few minutes."

// Searcher is the read-only slice of the vector index the pipeline uses.
type Searcher interface {
	Search(ctx context.Context, partitions []string, filterExpr string, embedding []float32, topK int) ([]vector.Result, error)
}

// Config tunes the pipeline's fallback policy. Zero values take the
// documented defaults.
type Config struct {
	TopK               int
	RelevanceThreshold int
	NoiseFloor         int
	FallbackChunks     int
	RerankConcurrency  int
	ChunkSize          int
	LongSegment        int
	// Deep selects the full analyze/filter/rerank pipeline; false runs
	// a single retrieve+generate pass.
	Deep bool
}

// Pipeline drives the end-to-end query-answer flow: analysis,
// scope-filtered retrieval with broadening, lexical candidate
// filtering with relaxation, per-chunk reranking, adaptive context
// assembly and grounded generation. Each stage prefers a narrow,
// precise answer and degrades to a broader, hedged one; NO_RESULTS and
// ERROR are reported only when every fallback is exhausted.
//
// A Pipeline is safe for concurrent use; each Process call carries its
// own state.
type Pipeline struct {
	embedder  Embedder
	searcher  Searcher
	analyzer  *Analyzer
	chunker   *Chunker
	reranker  *Reranker
	builder   *ContextBuilder
	generator *Generator
	cfg       Config
}

func NewPipeline(embedder Embedder, searcher Searcher, completer Completer, cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Pipeline{
		embedder:  embedder,
		searcher:  searcher,
		analyzer:  NewAnalyzer(completer),
		chunker:   NewChunker(cfg.ChunkSize, cfg.LongSegment),
		reranker:  NewReranker(completer, cfg.RerankConcurrency),
		builder:   NewContextBuilder(cfg.RelevanceThreshold, cfg.NoiseFloor, cfg.FallbackChunks),
		generator: NewGenerator(completer),
		cfg:       cfg,
	}
}

// Process answers one question within its scope. It always terminates
// in DONE, NO_RESULTS, SCOPE_NOT_FOUND or ERROR with a plain-language
// explanation; it never surfaces a raw backend error to the caller.
func (p *Pipeline) Process(ctx context.Context, req Request) Response {
	start := time.Now()
	state := StateAnalyzing

	topK := req.TopK
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	logger.Info("Processing query",
		zap.String("question", req.Question),
		zap.String("scope", req.Scope.String()),
		zap.Bool("deep", p.cfg.Deep),
	)

	resp := p.run(ctx, req, topK, &state)

	metrics.QueryTotal.WithLabelValues(string(resp.Outcome)).Inc()
	metrics.QueryDuration.WithLabelValues(pipelineDepth(p.cfg.Deep)).Observe(time.Since(start).Seconds())

	logger.Info("Query finished",
		zap.String("terminal_state", string(state)),
		zap.String("outcome", string(resp.Outcome)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return resp
}

func (p *Pipeline) run(ctx context.Context, req Request, topK int, state *State) Response {
	// ANALYZING: never fails outright; the analyzer degrades to token
	// fallback internally. Skipped entirely in the single-pass mode.
	var analysis QueryAnalysis
	searchQuestion := req.Question
	if p.cfg.Deep {
		analysis = p.analyzer.Analyze(ctx, req.Question)
		searchQuestion = p.generator.OptimizeQuery(ctx, req.Question)
	}

	p.transition(state, StateRetrieving)
	embedding, err := p.embedder.GenerateEmbedding(ctx, searchQuestion)
	if err != nil {
		logger.Error("Failed to embed question", zap.Error(err))
		return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
	}

	results, err := p.searcher.Search(ctx, req.Scope.Partitions(), req.Scope.FilterExpr(), embedding, topK)
	if err != nil {
		if errors.Is(err, vector.ErrPartitionNotFound) {
			return Response{
				Outcome: OutcomeScopeNotFound,
				Answer:  fmt.Sprintf("No document collection exists yet for batch %q.", req.Scope.Batch),
			}
		}
		logger.Error("Vector search failed", zap.Error(err))
		return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
	}

	var prefix string
	broadened := false
	if len(results) == 0 && !IsAll(req.Scope.DocumentType) {
		p.transition(state, StateRetryBroadened)
		broadened = true
		prefix = fmt.Sprintf("I couldn't find a specific '%s' document, so I broadened my search to other relevant materials. ", req.Scope.DocumentType)

		results, err = p.searcher.Search(ctx, req.Scope.Partitions(), req.Scope.BroadenedFilterExpr(), embedding, topK)
		if err != nil {
			logger.Error("Broadened vector search failed", zap.Error(err))
			return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
		}
	}

	metrics.RetrievedDocuments.Observe(float64(len(results)))

	if len(results) == 0 {
		p.transition(state, StateNoResults)
		return Response{
			Outcome:   OutcomeNoResults,
			Answer:    fmt.Sprintf("I performed a broad search but could not find any documents for your query in scope %s.", req.Scope.String()),
			Broadened: broadened,
		}
	}

	if !p.cfg.Deep {
		return p.generateSimple(ctx, req, results, prefix, broadened, state)
	}

	p.transition(state, StateFiltering)
	var chunks []Chunk
	for docIndex, result := range results {
		for _, text := range p.chunker.Chunk(result.Text) {
			chunks = append(chunks, Chunk{Text: text, Source: result.Metadata, DocIndex: docIndex})
		}
	}

	candidates, relaxed := FilterChunks(chunks, analysis)
	if relaxed && len(candidates) > 0 {
		p.transition(state, StateRetryRelaxed)
	}
	if len(candidates) == 0 {
		p.transition(state, StateNoResults)
		return Response{
			Outcome:   OutcomeNoResults,
			Answer:    fmt.Sprintf("I reviewed a relevant document (%s), but could not find any section related to your specific question.", firstFilename(results)),
			Broadened: broadened,
		}
	}

	p.transition(state, StateReranking)
	scored, err := p.reranker.Rank(ctx, req.Question, candidates)
	if err != nil {
		// Only cancellation reaches here; no partial answer is returned.
		logger.Warn("Reranking abandoned", zap.Error(err))
		return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
	}
	for _, sc := range scored {
		metrics.RerankScore.Observe(float64(sc.Score))
	}

	p.transition(state, StateContextBuilding)
	built, ok := p.builder.Build(scored)
	if !ok {
		p.transition(state, StateNoResults)
		return Response{
			Outcome:   OutcomeNoResults,
			Answer:    fmt.Sprintf("I performed a detailed analysis of the document (%s), but could not isolate a specific answer. The information may be absent or in an unreadable format.", firstFilename(results)),
			Broadened: broadened,
		}
	}

	p.transition(state, StateGenerating)
	sources := DedupeSources(built.Chunks)
	answer, err := p.generator.Generate(ctx, req.Question, built.Text, sources, built.HighConfidence)
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
	}

	p.transition(state, StateDone)
	return Response{
		Outcome:        OutcomeAnswered,
		Answer:         prefix + answer,
		Sources:        sources,
		HighConfidence: built.HighConfidence,
		Broadened:      broadened,
	}
}

// generateSimple is the single-pass depth: the retrieved documents are
// used as context directly, without lexical filtering or reranking.
func (p *Pipeline) generateSimple(ctx context.Context, req Request, results []vector.Result, prefix string, broadened bool, state *State) Response {
	p.transition(state, StateGenerating)

	texts := make([]string, len(results))
	contributing := make([]ScoredChunk, len(results))
	for i, result := range results {
		texts[i] = result.Text
		contributing[i] = ScoredChunk{Chunk: Chunk{Text: result.Text, Source: result.Metadata, DocIndex: i}}
	}

	sources := DedupeSources(contributing)
	answer, err := p.generator.Generate(ctx, req.Question, strings.Join(texts, ContextSeparator), sources, true)
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		return Response{Outcome: OutcomeError, Answer: degradedServiceMessage}
	}

	p.transition(state, StateDone)
	return Response{
		Outcome:        OutcomeAnswered,
		Answer:         prefix + answer,
		Sources:        sources,
		HighConfidence: true,
		Broadened:      broadened,
	}
}

func (p *Pipeline) transition(state *State, to State) {
	logger.Debug("Pipeline transition",
		zap.String("from", string(*state)),
		zap.String("to", string(to)),
	)
	*state = to
}

func firstFilename(results []vector.Result) string {
	for _, result := range results {
		if result.Metadata.Filename != "" {
			return result.Metadata.Filename
		}
	}
	return "the retrieved document"
}

func pipelineDepth(deep bool) string {
	if deep {
		return "deep"
	}
	return "simple"
}
