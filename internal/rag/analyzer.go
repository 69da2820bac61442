package rag

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/pkg/logger"
)

const analyzerSystemPrompt = `You are an expert query analyst. Analyze the user's question and break it down into a JSON object with two keys: 'keywords' and 'entities'.
- 'keywords' should be a list of simple, lower-case words for a broad search.
- 'entities' should be a list of specific, named things (like "computer engineering", "semester 1", "fees notice"). Preserve their original casing and form.
- Be concise and accurate. Example: for "what is the fee for sem 1 of cse?", respond with {"keywords": ["fee", "sem", "1", "cse"], "entities": ["sem 1", "cse"]}.
Respond with only the JSON object.`

var (
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	wordPattern       = regexp.MustCompile(`\b\w+\b`)
)

// Analyzer decomposes a question into keywords and entities via a
// language-model call, with a deterministic tokenizer fallback. Analyze
// never fails: a backend or parse failure degrades quality, not
// availability.
type Analyzer struct {
	completer Completer
}

func NewAnalyzer(completer Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

func (a *Analyzer) Analyze(ctx context.Context, question string) QueryAnalysis {
	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analyzerSystemPrompt,
		UserPrompt:   question,
		Temperature:  0.1,
		MaxTokens:    300,
	})
	if err != nil {
		logger.Warn("Query analysis call failed, using token fallback", zap.Error(err))
		return fallbackAnalysis(question)
	}

	analysis, ok := parseAnalysis(resp.Content)
	if !ok {
		logger.Warn("Query analysis response unparseable, using token fallback",
			zap.String("response", resp.Content),
		)
		return fallbackAnalysis(question)
	}

	logger.Debug("Query analyzed",
		zap.Strings("keywords", analysis.Keywords),
		zap.Strings("entities", analysis.Entities),
	)

	return analysis
}

// parseAnalysis extracts the first JSON object substring from the model
// response and decodes it as inert data. Model output is never
// evaluated, only parsed.
func parseAnalysis(content string) (QueryAnalysis, bool) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return QueryAnalysis{}, false
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(match), &analysis); err != nil {
		return QueryAnalysis{}, false
	}

	for i, kw := range analysis.Keywords {
		analysis.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}

	if len(analysis.Keywords) == 0 && len(analysis.Entities) == 0 {
		return QueryAnalysis{}, false
	}
	return analysis, true
}

// fallbackAnalysis tokenizes the question deterministically and uses
// the same token list for both keywords and entities.
func fallbackAnalysis(question string) QueryAnalysis {
	tokens := tokenize(question)
	entities := make([]string, len(tokens))
	copy(entities, tokens)
	return QueryAnalysis{Keywords: tokens, Entities: entities}
}

// tokenize lowercases and splits on word boundaries, preferring the
// prose tokenizer and falling back to a regexp scan if document
// construction fails.
func tokenize(question string) []string {
	doc, err := prose.NewDocument(question,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err == nil {
		var tokens []string
		for _, tok := range doc.Tokens() {
			word := strings.ToLower(strings.TrimSpace(tok.Text))
			if word != "" && wordPattern.MatchString(word) {
				tokens = append(tokens, word)
			}
		}
		if len(tokens) > 0 {
			return tokens
		}
	}

	return wordPattern.FindAllString(strings.ToLower(question), -1)
}
