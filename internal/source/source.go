// Package source defines the adapter contract that lets structurally
// different opinion sources (forums, social discussion, editorial sites,
// video platforms) be consumed uniformly, plus the concrete adapters.
package source

import (
	"context"
	"strings"

	"github.com/shopii/reviewrank/internal/storage"
)

// Adapter is the capability every source implements. Search and ScrapeOne
// are best-effort: lower-level fetch and parse failures are contained
// inside the adapter, which returns whatever it managed to collect. The
// returned error is informational for the orchestrator's outcome records
// and never carries transport detail a caller must handle.
type Adapter interface {
	// Type returns the source type tag (storage.SourceEditorial etc.).
	Type() string

	// Name identifies the concrete source, e.g. "wirecutter" or "reddit".
	Name() string

	// Categories lists the product categories this adapter applies to.
	// Empty means every category.
	Categories() []string

	// Search returns up to limit normalized items about the query.
	Search(ctx context.Context, query string, limit int) ([]storage.Item, error)

	// ScrapeOne scrapes a single page. The boolean reports whether a
	// usable item was produced.
	ScrapeOne(ctx context.Context, pageURL string) (storage.Item, bool)

	// Matches reports whether this adapter is responsible for the page
	// URL, used to dispatch single-URL scrapes to the right source.
	Matches(pageURL string) bool
}

// AppliesTo reports whether the adapter should run for the given category.
func AppliesTo(a Adapter, category string) bool {
	cats := a.Categories()
	if len(cats) == 0 {
		return true
	}
	for _, c := range cats {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// finalize enforces the adapter contract on a raw result set: items with
// empty content are dropped, duplicate source URLs collapse to the first
// occurrence, and the count is capped at limit.
func finalize(items []storage.Item, limit int) []storage.Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if item.Content == "" {
			continue
		}
		if _, dup := seen[item.SourceURL]; dup {
			continue
		}
		seen[item.SourceURL] = struct{}{}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// querySlug lowercases the query and joins its words with hyphens, the
// shape product names take in editorial site URLs.
func querySlug(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), "-")
}

// urlMatchToken derives the substring identifying a site's URLs from its
// base URL. The scheme and www prefix are stripped but the path is kept,
// so a section hosted inside a larger site (nytimes.com/wirecutter)
// matches precisely.
func urlMatchToken(baseURL string) string {
	s := strings.TrimPrefix(baseURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimPrefix(s, "www.")
}
