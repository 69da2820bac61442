package rag

import (
	"sort"
	"strings"
)

// ContextSeparator visibly delimits chunks inside the assembled context.
const ContextSeparator = "\n\n---\n\n"

// ContextBuilder assembles a bounded context window from scored chunks
// using a confidence-threshold policy.
type ContextBuilder struct {
	// Threshold is the score a chunk must meet to count as a direct hit.
	Threshold int
	// NoiseFloor is the minimum score a fallback chunk must exceed.
	NoiseFloor int
	// FallbackChunks is how many best-effort chunks to take when none
	// meet the threshold.
	FallbackChunks int
}

func NewContextBuilder(threshold, noiseFloor, fallbackChunks int) *ContextBuilder {
	if threshold <= 0 {
		threshold = 7
	}
	if noiseFloor <= 0 {
		noiseFloor = 2
	}
	if fallbackChunks <= 0 {
		fallbackChunks = 3
	}
	return &ContextBuilder{
		Threshold:      threshold,
		NoiseFloor:     noiseFloor,
		FallbackChunks: fallbackChunks,
	}
}

// BuiltContext is the assembled context plus the chunks that
// contributed to it, in descending-score order.
type BuiltContext struct {
	Text           string
	Chunks         []ScoredChunk
	HighConfidence bool
}

// Build sorts chunks descending by score (stable, preserving retrieval
// order among ties) and selects either every chunk meeting the
// threshold (high confidence) or the top FallbackChunks above the noise
// floor (low confidence). ok is false when neither policy yields
// anything — an explicit "no adequate context" outcome, not an error.
func (b *ContextBuilder) Build(scored []ScoredChunk) (BuiltContext, bool) {
	ordered := make([]ScoredChunk, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	var selected []ScoredChunk
	for _, sc := range ordered {
		if sc.Score >= b.Threshold {
			selected = append(selected, sc)
		}
	}
	highConfidence := len(selected) > 0

	if !highConfidence {
		for _, sc := range ordered {
			if len(selected) == b.FallbackChunks {
				break
			}
			if sc.Score > b.NoiseFloor {
				selected = append(selected, sc)
			}
		}
	}

	if len(selected) == 0 {
		return BuiltContext{}, false
	}

	texts := make([]string, len(selected))
	for i, sc := range selected {
		texts[i] = sc.Chunk.Text
	}

	return BuiltContext{
		Text:           strings.Join(texts, ContextSeparator),
		Chunks:         selected,
		HighConfidence: highConfidence,
	}, true
}
