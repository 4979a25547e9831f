// Package rating folds analyzed review items into a single product rating:
// a 0-100 score with its component signals, ranked pros and cons, and a
// prose summary.
package rating

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopii/reviewrank/internal/analyzer"
	"github.com/shopii/reviewrank/internal/storage"
)

const (
	// maxAnalyzedItems caps how many items go through per-item analysis.
	// Engagement sums still run over the full list.
	maxAnalyzedItems = 20

	// maxRankedPhrases caps the pros/cons lists on the final rating.
	maxRankedPhrases = 5
)

// Aggregator computes product ratings from scraped items.
type Aggregator struct {
	analyzer *analyzer.Analyzer
	backend  analyzer.Completer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. backend is used for summary prose
// and may be nil, in which case summaries use the deterministic template.
func NewAggregator(an *analyzer.Analyzer, backend analyzer.Completer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{analyzer: an, backend: backend, logger: logger}
}

// Aggregate computes the rating for a product from its items. An empty
// item list yields the fixed neutral rating.
func (g *Aggregator) Aggregate(ctx context.Context, productName string, items []storage.Item) storage.ProductRating {
	now := time.Now().UTC()

	if len(items) == 0 {
		return storage.ProductRating{
			Score:        50,
			ValueScore:   0.5,
			Summary:      "No reviews available for analysis.",
			CalculatedAt: now,
		}
	}

	toAnalyze := items
	if len(toAnalyze) > maxAnalyzedItems {
		toAnalyze = toAnalyze[:maxAnalyzedItems]
	}

	analyzed := make([]analyzer.AnalyzedItem, 0, len(toAnalyze))
	for _, item := range toAnalyze {
		analyzed = append(analyzed, g.analyzer.Analyze(ctx, item))
	}

	sentiment := weightedSentiment(analyzed)
	pros, cons := rankedPhrases(analyzed)
	reliability := reliabilityOf(analyzed)
	// engagement runs over the full item list, not just the analyzed slice
	popularity := popularityOf(items)
	value := 0.5 + 0.2*sentiment
	confidence := 0.6*math.Min(1, float64(len(items))/15.0) + 0.4*reliability

	score := int(math.Round(50 + 30*sentiment + 10*reliability + 5*value + 5*popularity))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return storage.ProductRating{
		Score:            score,
		Confidence:       round2(confidence),
		SentimentScore:   round2(sentiment),
		ReliabilityScore: round2(reliability),
		ValueScore:       round2(value),
		PopularityScore:  round2(popularity),
		SourcesAnalyzed:  len(items),
		Pros:             pros,
		Cons:             cons,
		Summary:          g.summary(ctx, productName, len(items), sentiment, pros, cons),
		CalculatedAt:     now,
	}
}

// weightedSentiment is the credibility-weighted mean of item sentiments.
func weightedSentiment(analyzed []analyzer.AnalyzedItem) float64 {
	var weighted, total float64
	for _, a := range analyzed {
		weighted += a.Sentiment * a.CredibilityWeight
		total += a.CredibilityWeight
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

type phraseCount struct {
	display string
	count   int
}

// rankedPhrases aggregates pros and cons across items by frequency. Phrases
// are keyed lowercased and trimmed; the display form is the key with its
// first letter capitalized. Ties keep first-seen order.
func rankedPhrases(analyzed []analyzer.AnalyzedItem) (pros, cons []string) {
	rank := func(pick func(analyzer.AnalyzedItem) []string) []string {
		seen := make(map[string]*phraseCount)
		var order []*phraseCount

		for _, a := range analyzed {
			for _, phrase := range pick(a) {
				key := strings.ToLower(strings.TrimSpace(phrase))
				if key == "" {
					continue
				}
				pc, ok := seen[key]
				if !ok {
					pc = &phraseCount{display: capitalize(key)}
					seen[key] = pc
					order = append(order, pc)
				}
				pc.count++
			}
		}

		sort.SliceStable(order, func(i, j int) bool {
			return order[i].count > order[j].count
		})

		var out []string
		for _, pc := range order {
			out = append(out, pc.display)
			if len(out) >= maxRankedPhrases {
				break
			}
		}
		return out
	}

	pros = rank(func(a analyzer.AnalyzedItem) []string { return a.Pros })
	cons = rank(func(a analyzer.AnalyzedItem) []string { return a.Cons })
	return pros, cons
}

// reliabilityOf measures agreement between sources: 1 minus the sample
// standard deviation of sentiments, floored at 0. Fewer than two items
// cannot show agreement and get the middling 0.5.
func reliabilityOf(analyzed []analyzer.AnalyzedItem) float64 {
	if len(analyzed) < 2 {
		return 0.5
	}

	var sum float64
	for _, a := range analyzed {
		sum += a.Sentiment
	}
	mean := sum / float64(len(analyzed))

	var sq float64
	for _, a := range analyzed {
		d := a.Sentiment - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(analyzed)-1))

	r := 1 - stdev
	if r < 0 {
		r = 0
	}
	return r
}

// popularityOf folds total engagement into [0, 1].
func popularityOf(items []storage.Item) float64 {
	var upvotes, comments int
	for _, item := range items {
		upvotes += item.Upvotes
		comments += item.CommentCount
	}

	p := (float64(upvotes)/100.0 + float64(comments)/50.0) / float64(len(items))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
