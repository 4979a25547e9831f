// Package analyzer turns raw review items into structured opinion: a
// sentiment value, extracted pros and cons, and a credibility weight. Text
// understanding is delegated to a Completer backend; when the backend is
// unavailable or returns garbage the analysis degrades to a neutral result
// instead of failing the batch.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopii/reviewrank/internal/metrics"
	"github.com/shopii/reviewrank/internal/storage"
)

const (
	// promptContentLimit caps how much item content goes into the prompt.
	promptContentLimit = 3000
	// maxPhrases caps extracted pros/cons per item.
	maxPhrases = 3
	// maxPhraseLength caps a single extracted phrase.
	maxPhraseLength = 80

	completionMaxTokens = 300
)

// AnalyzedItem is one item's analysis result. Never persisted.
type AnalyzedItem struct {
	Item              storage.Item
	Sentiment         float64 // [-1, 1]
	Pros              []string
	Cons              []string
	CredibilityWeight float64 // [0, 1]
}

// Analyzer analyzes review items one at a time.
type Analyzer struct {
	backend     Completer
	credibility *CredibilityModel
	logger      *slog.Logger
}

// New creates an Analyzer. backend may be nil, in which case every item
// gets the neutral analysis.
func New(backend Completer, credibility *CredibilityModel, logger *slog.Logger) *Analyzer {
	if credibility == nil {
		credibility = NewCredibilityModel(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		backend:     backend,
		credibility: credibility,
		logger:      logger,
	}
}

type itemAnalysis struct {
	Sentiment float64  `json:"sentiment"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

// Analyze computes the item's credibility weight and asks the backend for
// sentiment and pros/cons. Backend failures degrade to the neutral result;
// they never propagate.
func (a *Analyzer) Analyze(ctx context.Context, item storage.Item) AnalyzedItem {
	result := AnalyzedItem{
		Item:              item,
		CredibilityWeight: a.credibility.Weight(item.SourceType, item.Upvotes),
	}

	if a.backend == nil {
		metrics.AnalysisFallbacks.WithLabelValues("no_backend").Inc()
		return result
	}

	raw, err := a.backend.Complete(ctx, a.prompt(item), completionMaxTokens)
	if err != nil {
		a.logger.Warn("analysis degraded to neutral", "url", item.SourceURL, "err", err)
		metrics.AnalysisFallbacks.WithLabelValues("backend_error").Inc()
		return result
	}

	fragment := jsonFragment(raw)
	if fragment == "" {
		a.logger.Warn("analysis response had no JSON", "url", item.SourceURL)
		metrics.AnalysisFallbacks.WithLabelValues("no_json").Inc()
		return result
	}

	var parsed itemAnalysis
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		a.logger.Warn("analysis JSON did not match schema", "url", item.SourceURL, "err", err)
		metrics.AnalysisFallbacks.WithLabelValues("bad_json").Inc()
		return result
	}

	result.Sentiment = clampSentiment(parsed.Sentiment)
	result.Pros = cleanPhrases(parsed.Pros)
	result.Cons = cleanPhrases(parsed.Cons)
	return result
}

func (a *Analyzer) prompt(item storage.Item) string {
	content := item.Content
	if runes := []rune(content); len(runes) > promptContentLimit {
		content = string(runes[:promptContentLimit])
	}

	return fmt.Sprintf(`Analyze this product review content and respond with only a JSON object.

Source type: %s
Content:
%s

Respond with JSON in exactly this shape:
{"sentiment": <number from -1.0 (very negative) to 1.0 (very positive)>, "pros": [<up to 3 short phrases>], "cons": [<up to 3 short phrases>]}`,
		item.SourceType, content)
}

// jsonFragment extracts the first well-formed top-level {...} fragment from
// text that may wrap it in prose. Returns "" when none is found.
func jsonFragment(text string) string {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return ""
		}
		start += 1 + next
	}
	return ""
}

func clampSentiment(s float64) float64 {
	if s < -1 {
		return -1
	}
	if s > 1 {
		return 1
	}
	return s
}

// cleanPhrases trims, drops empties, caps phrase length and count.
func cleanPhrases(phrases []string) []string {
	var out []string
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runes := []rune(p); len(runes) > maxPhraseLength {
			p = string(runes[:maxPhraseLength])
		}
		out = append(out, p)
		if len(out) >= maxPhrases {
			break
		}
	}
	return out
}
