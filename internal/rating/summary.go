package rating

import (
	"context"
	"fmt"
	"strings"
)

const summaryMaxTokens = 200

// sentimentBand maps the aggregate sentiment to a coarse label used in
// prompts and the fallback summary.
func sentimentBand(sentiment float64) string {
	switch {
	case sentiment > 0.5:
		return "very positive"
	case sentiment > 0.2:
		return "positive"
	case sentiment > -0.2:
		return "mixed"
	case sentiment > -0.5:
		return "negative"
	default:
		return "very negative"
	}
}

// summary asks the text backend for two or three sentences of prose. Any
// backend failure falls back to the deterministic template.
func (g *Aggregator) summary(ctx context.Context, productName string, sources int, sentiment float64, pros, cons []string) string {
	band := sentimentBand(sentiment)
	fallback := fmt.Sprintf("Based on %d sources, users have %s opinions about the %s.", sources, band, productName)

	if g.backend == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`Write a 2-3 sentence consumer summary for the product %q.

Overall user sentiment: %s (based on %d sources)
Most mentioned pros: %s
Most mentioned cons: %s

Respond with the summary text only, no preamble.`,
		productName, band, sources, phraseList(pros), phraseList(cons))

	text, err := g.backend.Complete(ctx, prompt, summaryMaxTokens)
	if err != nil {
		g.logger.Warn("summary generation failed, using template", "product", productName, "err", err)
		return fallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

func phraseList(phrases []string) string {
	if len(phrases) == 0 {
		return "none mentioned"
	}
	return strings.Join(phrases, ", ")
}
