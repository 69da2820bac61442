package rag

import "strings"

// FilterChunks narrows chunks to those with lexical evidence for the
// query, in two passes:
//
//  1. strict: the chunk contains at least one keyword AND at least one
//     entity phrase (case-insensitive substring match);
//  2. relaxed: if the strict pass is empty, keyword matches alone keep
//     a chunk.
//
// An empty result after both passes means no evidence was found; the
// caller must short-circuit instead of reranking an empty set. The
// second return value reports whether the relaxed pass was used.
func FilterChunks(chunks []Chunk, analysis QueryAnalysis) ([]Chunk, bool) {
	var strict []Chunk
	for _, chunk := range chunks {
		lower := strings.ToLower(chunk.Text)
		if containsAny(lower, analysis.Keywords) && containsAnyFold(lower, analysis.Entities) {
			strict = append(strict, chunk)
		}
	}
	if len(strict) > 0 {
		return strict, false
	}

	var relaxed []Chunk
	for _, chunk := range chunks {
		if containsAny(strings.ToLower(chunk.Text), analysis.Keywords) {
			relaxed = append(relaxed, chunk)
		}
	}
	return relaxed, true
}

func containsAny(lowerText string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(lowerText, term) {
			return true
		}
	}
	return false
}

// containsAnyFold matches entity phrases, which preserve their original
// casing, against already-lowercased chunk text.
func containsAnyFold(lowerText string, phrases []string) bool {
	for _, phrase := range phrases {
		p := strings.ToLower(phrase)
		if p != "" && strings.Contains(lowerText, p) {
			return true
		}
	}
	return false
}
