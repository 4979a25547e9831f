package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopii/reviewrank/internal/storage"
)

func openTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func item(productID, url string) *storage.Item {
	return &storage.Item{
		ID:         url + "-id",
		ProductID:  productID,
		SourceType: storage.SourceSocial,
		SourceURL:  url,
		Content:    "content " + url,
		ScrapedAt:  time.Now().UTC(),
	}
}

func sampleRating(productID string, score int) *storage.ProductRating {
	return &storage.ProductRating{
		ProductID:        productID,
		Score:            score,
		Confidence:       0.5,
		SentimentScore:   0.2,
		ReliabilityScore: 0.7,
		ValueScore:       0.54,
		PopularityScore:  0.1,
		SourcesAnalyzed:  4,
		Pros:             []string{"Solid build"},
		Cons:             []string{"Pricey"},
		Summary:          "Mostly liked.",
		CalculatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveItems_DedupesBySourceURL(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	n, err := b.SaveItems(ctx, []*storage.Item{item("p1", "https://a"), item("p1", "https://b")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	// same urls again: conflict target ignores them
	n, err = b.SaveItems(ctx, []*storage.Item{item("p1", "https://a"), item("p1", "https://c")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	known, err := b.KnownSourceURLs(ctx, "p1")
	if err != nil {
		t.Fatalf("known urls: %v", err)
	}
	if len(known) != 3 {
		t.Errorf("known = %d, want 3", len(known))
	}
	if _, ok := known["https://b"]; !ok {
		t.Error("url missing from known set")
	}
}

func TestUpsertRating_Overwrites(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.UpsertRating(ctx, sampleRating("p1", 60)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	updated := sampleRating("p1", 85)
	updated.Pros = []string{"Improved firmware"}
	if err := b.UpsertRating(ctx, updated); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := b.Rating(ctx, "p1")
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if got.Score != 85 {
		t.Errorf("score = %d, want 85 (replace, not append)", got.Score)
	}
	if len(got.Pros) != 1 || got.Pros[0] != "Improved firmware" {
		t.Errorf("pros not replaced: %v", got.Pros)
	}
	if len(got.Cons) != 1 || got.Cons[0] != "Pricey" {
		t.Errorf("cons lost: %v", got.Cons)
	}
}

func TestRating_NotFound(t *testing.T) {
	b := openTestBackend(t)

	_, err := b.Rating(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStaleProducts(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	for _, p := range []storage.Product{
		{ID: "fresh", Name: "Fresh Widget", Category: "gadgets"},
		{ID: "stale", Name: "Stale Widget", Category: "gadgets"},
		{ID: "unrated", Name: "New Widget", Category: "gadgets"},
	} {
		if err := b.EnsureProduct(ctx, p); err != nil {
			t.Fatalf("ensure product: %v", err)
		}
	}

	freshRating := sampleRating("fresh", 70)
	freshRating.CalculatedAt = time.Now().UTC()
	if err := b.UpsertRating(ctx, freshRating); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	staleRating := sampleRating("stale", 70)
	staleRating.CalculatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	if err := b.UpsertRating(ctx, staleRating); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	got, err := b.StaleProducts(ctx, cutoff, 10)
	if err != nil {
		t.Fatalf("stale products: %v", err)
	}

	ids := make(map[string]bool)
	for _, p := range got {
		ids[p.ID] = true
	}
	if !ids["stale"] {
		t.Error("expected stale product listed")
	}
	if !ids["unrated"] {
		t.Error("expected never-rated product listed")
	}
	if ids["fresh"] {
		t.Error("fresh product should not be listed")
	}
}

func TestStaleProducts_Limit(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := b.EnsureProduct(ctx, storage.Product{ID: id, Name: id}); err != nil {
			t.Fatalf("ensure product: %v", err)
		}
	}

	got, err := b.StaleProducts(ctx, time.Now().UTC(), 2)
	if err != nil {
		t.Fatalf("stale products: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestEnsureProduct_UpdatesInPlace(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.EnsureProduct(ctx, storage.Product{ID: "p1", Name: "Old Name"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := b.EnsureProduct(ctx, storage.Product{ID: "p1", Name: "New Name", Category: "audio"}); err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	got, err := b.StaleProducts(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("stale products: %v", err)
	}
	if len(got) != 1 || got[0].Name != "New Name" || got[0].Category != "audio" {
		t.Errorf("unexpected products: %+v", got)
	}
}

func TestTouchProduct(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.EnsureProduct(ctx, storage.Product{ID: "p1", Name: "Widget"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := b.TouchProduct(ctx, "p1", time.Now().UTC()); err != nil {
		t.Errorf("touch: %v", err)
	}
}
