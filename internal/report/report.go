// Package report renders pipeline run results for CLI consumption.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopii/reviewrank/internal/pipeline"
)

// Summary is the flattened, serializable view of one pipeline run.
type Summary struct {
	RunID           string          `json:"run_id"`
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Status          string          `json:"status"`
	Score           int             `json:"score"`
	Confidence      float64         `json:"confidence"`
	SourcesAnalyzed int             `json:"sources_analyzed"`
	NewItems        int             `json:"new_items"`
	Duration        string          `json:"duration"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Sources         []SourceOutcome `json:"sources"`
}

// SourceOutcome is one adapter's contribution to the run.
type SourceOutcome struct {
	Source   string `json:"source"`
	Found    int    `json:"found"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// New builds a Summary from a run result.
func New(productName string, result pipeline.RunResult) *Summary {
	s := &Summary{
		RunID:           result.RunID,
		ProductID:       result.ProductID,
		ProductName:     productName,
		Status:          result.Status,
		Score:           result.Score,
		Confidence:      result.Confidence,
		SourcesAnalyzed: result.SourcesAnalyzed,
		NewItems:        result.NewItems,
		Duration:        result.Duration.Round(time.Millisecond).String(),
		GeneratedAt:     time.Now().UTC(),
	}
	for _, o := range result.Outcomes {
		s.Sources = append(s.Sources, SourceOutcome{
			Source:   o.Source,
			Found:    o.Found,
			Error:    o.Err,
			Duration: o.Duration.Round(time.Millisecond).String(),
		})
	}
	return s
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable summary.
func (s *Summary) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Product:  %s (%s)\n", s.ProductName, s.ProductID)
	fmt.Fprintf(&b, "Status:   %s\n", s.Status)
	if s.Status == pipeline.StatusSuccess {
		fmt.Fprintf(&b, "Score:    %d/100 (confidence %.2f)\n", s.Score, s.Confidence)
		fmt.Fprintf(&b, "Sources:  %d analyzed, %d newly stored\n", s.SourcesAnalyzed, s.NewItems)
	}
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration)

	if len(s.Sources) > 0 {
		fmt.Fprintf(&b, "\nPer-source results:\n")
		for _, src := range s.Sources {
			if src.Error != "" {
				fmt.Fprintf(&b, "  %-12s failed after %s: %s\n", src.Source, src.Duration, src.Error)
				continue
			}
			fmt.Fprintf(&b, "  %-12s %d items in %s\n", src.Source, src.Found, src.Duration)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
