package storage

import (
	"context"
	"errors"
	"time"
)

// Source type tags. Adapters declare one of these; unknown tags are still
// accepted and fall back to the lowest credibility tier downstream.
const (
	SourceEditorial = "editorial"
	SourceVideo     = "video"
	SourceSocial    = "social"
	SourceForum     = "forum"
	SourceUnknown   = "unknown"
)

// ErrNotFound is returned when a requested rating or product does not exist.
var ErrNotFound = errors.New("not found")

// Item is one normalized unit of scraped opinion content. Items are
// immutable once produced by an adapter; the pipeline stamps ID, ProductID
// and ScrapedAt before persisting.
type Item struct {
	ID           string
	ProductID    string
	SourceType   string
	SourceURL    string // unique key for deduplication
	SourceName   string // subreddit, channel, or site name
	Content      string
	Upvotes      int
	CommentCount int
	Author       string
	PostedAt     time.Time
	ScrapedAt    time.Time
}

// Product is the minimal product identity the engine needs for staleness
// refresh. Product records themselves are owned by the catalog service.
type Product struct {
	ID       string
	Name     string
	Category string
}

// ProductRating is the aggregated output of one pipeline run. Exactly one
// row exists per product; a later run replaces the prior rating.
type ProductRating struct {
	ProductID        string
	Score            int     // 0-100
	Confidence       float64 // 0.0-1.0
	SentimentScore   float64 // -1.0 to 1.0
	ReliabilityScore float64 // 0.0-1.0
	ValueScore       float64 // 0.0-1.0
	PopularityScore  float64 // 0.0-1.0
	SourcesAnalyzed  int
	Pros             []string
	Cons             []string
	Summary          string
	CalculatedAt     time.Time
}

// Backend defines the persistence boundary of the rating pipeline.
// SaveItems must skip source URLs it has already stored and UpsertRating
// must replace by product identity, so that a retried run is a no-op.
type Backend interface {
	// EnsureProduct records the product identity so staleness refresh can
	// find it later. Idempotent; name and category are updated in place.
	EnsureProduct(ctx context.Context, p Product) error

	// KnownSourceURLs returns the set of source URLs already stored for
	// the product.
	KnownSourceURLs(ctx context.Context, productID string) (map[string]struct{}, error)

	// SaveItems inserts items whose SourceURL is unseen and reports how
	// many rows were actually inserted.
	SaveItems(ctx context.Context, items []*Item) (int, error)

	// UpsertRating writes the rating for rating.ProductID, overwriting any
	// prior row including CalculatedAt.
	UpsertRating(ctx context.Context, rating *ProductRating) error

	// Rating returns the stored rating for the product, or ErrNotFound.
	Rating(ctx context.Context, productID string) (*ProductRating, error)

	// StaleProducts lists products whose rating is missing or older than
	// the given instant, newest products first.
	StaleProducts(ctx context.Context, olderThan time.Time, limit int) ([]Product, error)

	// TouchProduct records when the product was last scraped.
	TouchProduct(ctx context.Context, productID string, at time.Time) error

	Close() error
}
