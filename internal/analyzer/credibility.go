package analyzer

import "github.com/shopii/reviewrank/internal/storage"

// Base credibility per source type. Editorial reviews carry the most
// weight; anonymous social posts the least.
var defaultCredibility = map[string]float64{
	storage.SourceEditorial: 0.95,
	storage.SourceVideo:     0.70,
	storage.SourceSocial:    0.60,
	storage.SourceForum:     0.55,
	storage.SourceUnknown:   0.50,
}

// CredibilityModel maps an item to a weight in [0, 1]. Community approval
// bumps the base weight of its source type.
type CredibilityModel struct {
	base map[string]float64
}

// NewCredibilityModel builds the model. overrides replaces the base weight
// for the source types it names; unnamed types keep their defaults.
func NewCredibilityModel(overrides map[string]float64) *CredibilityModel {
	base := make(map[string]float64, len(defaultCredibility))
	for k, v := range defaultCredibility {
		base[k] = v
	}
	for k, v := range overrides {
		base[k] = v
	}
	return &CredibilityModel{base: base}
}

// Weight returns the credibility weight for a source type and upvote count.
// Unrecognized source types get the unknown baseline.
func (m *CredibilityModel) Weight(sourceType string, upvotes int) float64 {
	w, ok := m.base[sourceType]
	if !ok {
		w = m.base[storage.SourceUnknown]
	}

	switch {
	case upvotes > 100:
		w += 0.10
	case upvotes > 50:
		w += 0.05
	case upvotes > 10:
		w += 0.02
	}

	if w > 1.0 {
		w = 1.0
	}
	return w
}
