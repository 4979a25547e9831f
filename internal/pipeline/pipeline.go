// Package pipeline orchestrates one product's end-to-end run: fan out to
// the source adapters, dedupe and persist what they found, aggregate the
// corpus into a rating, and upsert it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shopii/reviewrank/internal/metrics"
	"github.com/shopii/reviewrank/internal/rating"
	"github.com/shopii/reviewrank/internal/source"
	"github.com/shopii/reviewrank/internal/storage"
)

// Run statuses.
const (
	StatusSuccess   = "success"
	StatusNoReviews = "no_reviews"
	StatusFailed    = "failed"
)

// Config bounds a pipeline run.
type Config struct {
	// ItemsPerAdapter caps what one adapter's Search may return.
	ItemsPerAdapter int
	// AdapterTimeout bounds a single adapter's Search call.
	AdapterTimeout time.Duration
	// RunTimeout bounds the whole run.
	RunTimeout time.Duration
	// MaxRetries bounds RunWithRetry on failed runs.
	MaxRetries int
	// RetryBackoff is the base backoff, doubled per attempt with jitter.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ItemsPerAdapter <= 0 {
		c.ItemsPerAdapter = 10
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 60 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Outcome records how one adapter fared during a run.
type Outcome struct {
	Source   string
	Found    int
	Err      string
	Duration time.Duration
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID           string
	ProductID       string
	Status          string
	Score           int
	Confidence      float64
	SourcesAnalyzed int
	NewItems        int
	Outcomes        []Outcome
	Duration        time.Duration
}

// Orchestrator runs the scrape-analyze-rate pipeline for products.
type Orchestrator struct {
	adapters   []source.Adapter
	backend    storage.Backend
	aggregator *rating.Aggregator
	config     Config
	logger     *slog.Logger

	mu       sync.Mutex
	products map[string]*sync.Mutex
}

// New creates an Orchestrator.
func New(adapters []source.Adapter, backend storage.Backend, aggregator *rating.Aggregator, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		adapters:   adapters,
		backend:    backend,
		aggregator: aggregator,
		config:     cfg.withDefaults(),
		logger:     logger,
		products:   make(map[string]*sync.Mutex),
	}
}

// Run executes one pipeline run for the product. A failed run returns a
// non-nil error alongside the result so callers can retry; no_reviews is a
// terminal success with an empty corpus.
func (o *Orchestrator) Run(ctx context.Context, productID, productName, category string) (RunResult, error) {
	start := time.Now()
	result := RunResult{
		RunID:     uuid.NewString(),
		ProductID: productID,
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.RunTimeout)
	defer cancel()

	logger := o.logger.With("run_id", result.RunID, "product_id", productID)
	logger.Info("pipeline run started", "product", productName, "category", category)

	if err := o.backend.EnsureProduct(ctx, storage.Product{
		ID:       productID,
		Name:     productName,
		Category: category,
	}); err != nil {
		return o.finish(result, start, StatusFailed, fmt.Errorf("ensure product: %w", err))
	}

	items, outcomes := o.collect(ctx, productName, category)
	result.Outcomes = outcomes

	newItems, err := o.persist(ctx, productID, items)
	if err != nil {
		return o.finish(result, start, StatusFailed, fmt.Errorf("persist items: %w", err))
	}
	result.NewItems = newItems

	if len(items) == 0 {
		logger.Info("no reviews found")
		return o.finish(result, start, StatusNoReviews, nil)
	}

	ratingRow := o.aggregator.Aggregate(ctx, productName, items)
	ratingRow.ProductID = productID

	// one writer per product; concurrent runs for different products are fine
	lock := o.productLock(productID)
	lock.Lock()
	err = o.backend.UpsertRating(ctx, &ratingRow)
	lock.Unlock()
	if err != nil {
		return o.finish(result, start, StatusFailed, fmt.Errorf("upsert rating: %w", err))
	}

	if err := o.backend.TouchProduct(ctx, productID, time.Now().UTC()); err != nil {
		logger.Warn("touch product failed", "err", err)
	}

	result.Score = ratingRow.Score
	result.Confidence = ratingRow.Confidence
	result.SourcesAnalyzed = ratingRow.SourcesAnalyzed

	logger.Info("pipeline run finished",
		"score", ratingRow.Score,
		"sources", ratingRow.SourcesAnalyzed,
		"new_items", newItems)

	return o.finish(result, start, StatusSuccess, nil)
}

// RunWithRetry retries failed runs with jittered exponential backoff.
// Idempotent ingestion and upsert make a replayed run safe.
func (o *Orchestrator) RunWithRetry(ctx context.Context, productID, productName, category string) (RunResult, error) {
	var result RunResult
	var err error

	backoff := o.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		result, err = o.Run(ctx, productID, productName, category)
		if err == nil || attempt >= o.config.MaxRetries {
			return result, err
		}

		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		o.logger.Warn("run failed, retrying",
			"product_id", productID,
			"attempt", attempt+1,
			"backoff", sleep,
			"err", err)

		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(sleep):
		}
		backoff *= 2
	}
}

// ScrapeURL scrapes a single page with the adapter responsible for its
// host and attaches the item to the product. Re-scraping an already-known
// URL is a no-op on the stored corpus.
func (o *Orchestrator) ScrapeURL(ctx context.Context, productID, pageURL string) (*storage.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.AdapterTimeout)
	defer cancel()

	var adapter source.Adapter
	for _, a := range o.adapters {
		if a.Matches(pageURL) {
			adapter = a
			break
		}
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter handles %s", pageURL)
	}

	item, ok := adapter.ScrapeOne(ctx, pageURL)
	if !ok {
		return nil, fmt.Errorf("no usable content at %s", pageURL)
	}

	item.ID = uuid.NewString()
	item.ProductID = productID
	item.ScrapedAt = time.Now().UTC()

	inserted, err := o.backend.SaveItems(ctx, []*storage.Item{&item})
	if err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	metrics.ItemsScraped.WithLabelValues(adapter.Name()).Add(float64(inserted))

	o.logger.Info("scraped url",
		"url", pageURL,
		"source", adapter.Name(),
		"new", inserted == 1)

	return &item, nil
}

// collect fans out to the applicable adapters and merges their results,
// collapsing duplicate source URLs across adapters in adapter order.
func (o *Orchestrator) collect(ctx context.Context, productName, category string) ([]storage.Item, []Outcome) {
	applicable := make([]source.Adapter, 0, len(o.adapters))
	for _, a := range o.adapters {
		if source.AppliesTo(a, category) {
			applicable = append(applicable, a)
		}
	}

	perAdapter := make([][]storage.Item, len(applicable))
	outcomes := make([]Outcome, len(applicable))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range applicable {
		i, adapter := i, adapter
		g.Go(func() error {
			adapterCtx, cancel := context.WithTimeout(gctx, o.config.AdapterTimeout)
			defer cancel()

			started := time.Now()
			items, err := adapter.Search(adapterCtx, productName, o.config.ItemsPerAdapter)
			outcome := Outcome{
				Source:   adapter.Name(),
				Found:    len(items),
				Duration: time.Since(started),
			}
			if err != nil {
				outcome.Err = err.Error()
				metrics.AdapterErrors.WithLabelValues(adapter.Name()).Inc()
				o.logger.Warn("adapter search failed", "source", adapter.Name(), "err", err)
			}
			metrics.ItemsScraped.WithLabelValues(adapter.Name()).Add(float64(len(items)))

			perAdapter[i] = items
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait() // adapter errors live in the outcomes, never abort the group

	seen := make(map[string]struct{})
	var merged []storage.Item
	for _, items := range perAdapter {
		for _, item := range items {
			if _, dup := seen[item.SourceURL]; dup {
				continue
			}
			seen[item.SourceURL] = struct{}{}
			merged = append(merged, item)
		}
	}

	return merged, outcomes
}

// persist stamps and stores items whose source URL the backend has not
// seen, returning how many rows were inserted.
func (o *Orchestrator) persist(ctx context.Context, productID string, items []storage.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	known, err := o.backend.KnownSourceURLs(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("known urls: %w", err)
	}

	now := time.Now().UTC()
	var fresh []*storage.Item
	for i := range items {
		if _, ok := known[items[i].SourceURL]; ok {
			continue
		}
		item := items[i]
		item.ID = uuid.NewString()
		item.ProductID = productID
		item.ScrapedAt = now
		fresh = append(fresh, &item)
	}

	if len(fresh) == 0 {
		return 0, nil
	}
	return o.backend.SaveItems(ctx, fresh)
}

func (o *Orchestrator) finish(result RunResult, start time.Time, status string, err error) (RunResult, error) {
	result.Status = status
	result.Duration = time.Since(start)
	metrics.RecordRun(status, result.Duration)
	return result, err
}

func (o *Orchestrator) productLock(productID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.products[productID]
	if !ok {
		lock = &sync.Mutex{}
		o.products[productID] = lock
	}
	return lock
}
