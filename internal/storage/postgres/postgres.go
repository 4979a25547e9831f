package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopii/reviewrank/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	last_scraped_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS review_items (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_url TEXT NOT NULL UNIQUE,
	source_name TEXT,
	content TEXT NOT NULL,
	upvotes INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	author TEXT,
	posted_at TIMESTAMPTZ,
	scraped_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_items_product ON review_items (product_id);

CREATE TABLE IF NOT EXISTS product_ratings (
	product_id TEXT PRIMARY KEY,
	score INTEGER NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	sentiment_score DOUBLE PRECISION NOT NULL,
	reliability_score DOUBLE PRECISION NOT NULL,
	value_score DOUBLE PRECISION NOT NULL,
	popularity_score DOUBLE PRECISION NOT NULL,
	sources_analyzed INTEGER NOT NULL,
	pros TEXT[] NOT NULL,
	cons TEXT[] NOT NULL,
	summary TEXT NOT NULL,
	calculated_at TIMESTAMPTZ NOT NULL
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) EnsureProduct(ctx context.Context, p storage.Product) error {
	query := `
	INSERT INTO products (id, name, category, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category
	`
	if _, err := b.pool.Exec(ctx, query, p.ID, p.Name, p.Category, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure product: %w", err)
	}
	return nil
}

func (b *postgresBackend) KnownSourceURLs(ctx context.Context, productID string) (map[string]struct{}, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT source_url FROM review_items WHERE product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("query known urls: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		known[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return known, nil
}

func (b *postgresBackend) SaveItems(ctx context.Context, items []*storage.Item) (int, error) {
	query := `
	INSERT INTO review_items (
		id, product_id, source_type, source_url, source_name, content,
		upvotes, comment_count, author, posted_at, scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (source_url) DO NOTHING
	`

	inserted := 0
	for _, item := range items {
		var postedAt any
		if !item.PostedAt.IsZero() {
			postedAt = item.PostedAt
		}
		tag, err := b.pool.Exec(ctx, query,
			item.ID,
			item.ProductID,
			item.SourceType,
			item.SourceURL,
			item.SourceName,
			item.Content,
			item.Upvotes,
			item.CommentCount,
			item.Author,
			postedAt,
			item.ScrapedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert item %s: %w", item.SourceURL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (b *postgresBackend) UpsertRating(ctx context.Context, rating *storage.ProductRating) error {
	query := `
	INSERT INTO product_ratings (
		product_id, score, confidence, sentiment_score, reliability_score,
		value_score, popularity_score, sources_analyzed, pros, cons, summary, calculated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (product_id) DO UPDATE SET
		score = EXCLUDED.score,
		confidence = EXCLUDED.confidence,
		sentiment_score = EXCLUDED.sentiment_score,
		reliability_score = EXCLUDED.reliability_score,
		value_score = EXCLUDED.value_score,
		popularity_score = EXCLUDED.popularity_score,
		sources_analyzed = EXCLUDED.sources_analyzed,
		pros = EXCLUDED.pros,
		cons = EXCLUDED.cons,
		summary = EXCLUDED.summary,
		calculated_at = EXCLUDED.calculated_at
	`

	_, err := b.pool.Exec(ctx, query,
		rating.ProductID,
		rating.Score,
		rating.Confidence,
		rating.SentimentScore,
		rating.ReliabilityScore,
		rating.ValueScore,
		rating.PopularityScore,
		rating.SourcesAnalyzed,
		rating.Pros,
		rating.Cons,
		rating.Summary,
		rating.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (b *postgresBackend) Rating(ctx context.Context, productID string) (*storage.ProductRating, error) {
	query := `
	SELECT product_id, score, confidence, sentiment_score, reliability_score,
		value_score, popularity_score, sources_analyzed, pros, cons, summary, calculated_at
	FROM product_ratings WHERE product_id = $1
	`

	var r storage.ProductRating
	err := b.pool.QueryRow(ctx, query, productID).Scan(
		&r.ProductID, &r.Score, &r.Confidence, &r.SentimentScore, &r.ReliabilityScore,
		&r.ValueScore, &r.PopularityScore, &r.SourcesAnalyzed, &r.Pros, &r.Cons,
		&r.Summary, &r.CalculatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query rating: %w", err)
	}
	return &r, nil
}

func (b *postgresBackend) StaleProducts(ctx context.Context, olderThan time.Time, limit int) ([]storage.Product, error) {
	query := `
	SELECT p.id, p.name, COALESCE(p.category, '')
	FROM products p
	LEFT JOIN product_ratings pr ON p.id = pr.product_id
	WHERE pr.calculated_at IS NULL OR pr.calculated_at < $1
	ORDER BY p.created_at DESC
	`
	args := []any{olderThan}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale products: %w", err)
	}
	defer rows.Close()

	var products []storage.Product
	for rows.Next() {
		var p storage.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (b *postgresBackend) TouchProduct(ctx context.Context, productID string, at time.Time) error {
	_, err := b.pool.Exec(ctx,
		`UPDATE products SET last_scraped_at = $1 WHERE id = $2`, at, productID)
	if err != nil {
		return fmt.Errorf("touch product: %w", err)
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
