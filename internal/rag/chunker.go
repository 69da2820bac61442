package rag

import (
	"strings"
)

// Chunker splits document text into bounded passages along paragraph
// boundaries, falling back to line-level packing for long segments so
// table-like rows stay intact. Deterministic and idempotent.
type Chunker struct {
	// MaxChunk caps a packed sub-chunk's length in characters.
	MaxChunk int
	// LongSegment is the paragraph length above which line-level
	// re-splitting kicks in.
	LongSegment int
}

func NewChunker(maxChunk, longSegment int) *Chunker {
	if maxChunk <= 0 {
		maxChunk = 1000
	}
	if longSegment <= 0 {
		longSegment = 1500
	}
	return &Chunker{MaxChunk: maxChunk, LongSegment: longSegment}
}

// Chunk splits text on blank lines first, then re-splits any segment
// longer than LongSegment on single newlines, greedily packing lines
// into chunks of at most MaxChunk characters. Whitespace-only fragments
// are discarded. If nothing survives, the original text is returned as
// a single chunk.
func (c *Chunker) Chunk(text string) []string {
	segments := strings.Split(text, "\n\n")

	var chunks []string
	for _, segment := range segments {
		if len(segment) > c.LongSegment {
			chunks = append(chunks, c.packLines(segment)...)
		} else if strings.TrimSpace(segment) != "" {
			chunks = append(chunks, strings.TrimSpace(segment))
		}
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

func (c *Chunker) packLines(segment string) []string {
	var packed []string
	var current strings.Builder

	for _, line := range strings.Split(segment, "\n") {
		if current.Len()+len(line)+1 >= c.MaxChunk && current.Len() > 0 {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				packed = append(packed, trimmed)
			}
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		packed = append(packed, trimmed)
	}

	return packed
}
