package llm

import (
	"context"
	"strings"
)

// poorSleepTerms and goodSleepTerms are the lexicon the fallback scorer
// counts. Terms are matched against lower-cased word tokens.
var (
	poorSleepTerms = map[string]bool{
		"awake": true, "awoke": true, "bad": true, "badly": true, "exhausted": true,
		"insomnia": true, "interrupted": true, "restless": true, "stress": true,
		"stressed": true, "anxious": true, "anxiety": true, "tired": true,
		"nightmare": true, "nightmares": true, "terrible": true, "poor": true,
		"poorly": true, "tossing": true, "woke": true, "waking": true, "groggy": true,
		"fatigue": true, "sleepless": true, "worse": true, "noise": true, "noisy": true,
	}
	goodSleepTerms = map[string]bool{
		"good": true, "great": true, "well": true, "rested": true, "refreshed": true,
		"calm": true, "relaxed": true, "deep": true, "deeply": true, "soundly": true,
		"energized": true, "energetic": true, "better": true, "peaceful": true,
		"uninterrupted": true, "fine": true, "excellent": true,
	}
	negations = map[string]bool{
		"not": true, "no": true, "never": true, "didn't": true, "didnt": true,
		"wasn't": true, "wasnt": true, "don't": true, "dont": true, "hardly": true,
	}
)

// minLexiconHits keeps a single matched word from producing a full-strength score.
const minLexiconHits = 3

// FallbackClient implements the Client interface with a keyword lexicon
// instead of LLM calls. It is used when no model provider is available.
type FallbackClient struct{}

// NewFallbackClient creates a new FallbackClient.
func NewFallbackClient() *FallbackClient {
	return &FallbackClient{}
}

// ScoreSleep counts poor-sleep and good-sleep terms. A negation directly
// before a term flips it. Descriptions with no matches score 0.
func (c *FallbackClient) ScoreSleep(_ context.Context, description string) (float64, error) {
	var poor, good int
	words := tokenize(strings.ToLower(description))
	for i, w := range words {
		negated := i > 0 && negations[words[i-1]]
		switch {
		case poorSleepTerms[w] && !negated, goodSleepTerms[w] && negated:
			poor++
		case goodSleepTerms[w] && !negated, poorSleepTerms[w] && negated:
			good++
		}
	}

	hits := poor + good
	if hits == 0 {
		return 0, nil
	}
	return clampScore(float64(poor-good) / float64(max(hits, minLexiconHits))), nil
}

// Available always returns true; the lexicon needs no configuration.
func (c *FallbackClient) Available() bool {
	return true
}

// tokenize splits a string into word tokens. Apostrophes stay inside words.
func tokenize(s string) []string {
	words := make([]string, 0)
	var current strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '\'' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}
