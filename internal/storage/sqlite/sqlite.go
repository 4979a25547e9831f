package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopii/reviewrank/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT,
	created_at DATETIME NOT NULL,
	last_scraped_at DATETIME
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
	posted_at DATETIME,
	scraped_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_items_product ON review_items (product_id);

CREATE TABLE IF NOT EXISTS product_ratings (
	product_id TEXT PRIMARY KEY,
	score INTEGER NOT NULL,
	confidence REAL NOT NULL,
	sentiment_score REAL NOT NULL,
	reliability_score REAL NOT NULL,
	value_score REAL NOT NULL,
	popularity_score REAL NOT NULL,
	sources_analyzed INTEGER NOT NULL,
	pros TEXT NOT NULL,
	cons TEXT NOT NULL,
	summary TEXT NOT NULL,
	calculated_at DATETIME NOT NULL
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) EnsureProduct(ctx context.Context, p storage.Product) error {
	query := `
	INSERT INTO products (id, name, category, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category
	`
	if _, err := b.db.ExecContext(ctx, query, p.ID, p.Name, p.Category, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure product: %w", err)
	}
	return nil
}

func (b *sqliteBackend) KnownSourceURLs(ctx context.Context, productID string) (map[string]struct{}, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT source_url FROM review_items WHERE product_id = ?`, productID)
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

func (b *sqliteBackend) SaveItems(ctx context.Context, items []*storage.Item) (int, error) {
	query := `
	INSERT INTO review_items (
		id, product_id, source_type, source_url, source_name, content,
		upvotes, comment_count, author, posted_at, scraped_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (source_url) DO NOTHING
	`

	inserted := 0
	for _, item := range items {
		var postedAt any
		if !item.PostedAt.IsZero() {
			postedAt = item.PostedAt
		}
		res, err := b.db.ExecContext(ctx, query,
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
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (b *sqliteBackend) UpsertRating(ctx context.Context, rating *storage.ProductRating) error {
	prosJSON, err := json.Marshal(rating.Pros)
	if err != nil {
		return fmt.Errorf("marshal pros: %w", err)
	}
	consJSON, err := json.Marshal(rating.Cons)
	if err != nil {
		return fmt.Errorf("marshal cons: %w", err)
	}

	query := `
	INSERT INTO product_ratings (
		product_id, score, confidence, sentiment_score, reliability_score,
		value_score, popularity_score, sources_analyzed, pros, cons, summary, calculated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (product_id) DO UPDATE SET
		score = excluded.score,
		confidence = excluded.confidence,
		sentiment_score = excluded.sentiment_score,
		reliability_score = excluded.reliability_score,
		value_score = excluded.value_score,
		popularity_score = excluded.popularity_score,
		sources_analyzed = excluded.sources_analyzed,
		pros = excluded.pros,
		cons = excluded.cons,
		summary = excluded.summary,
		calculated_at = excluded.calculated_at
	`

	_, err = b.db.ExecContext(ctx, query,
		rating.ProductID,
		rating.Score,
		rating.Confidence,
		rating.SentimentScore,
		rating.ReliabilityScore,
		rating.ValueScore,
		rating.PopularityScore,
		rating.SourcesAnalyzed,
		string(prosJSON),
		string(consJSON),
		rating.Summary,
		rating.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Rating(ctx context.Context, productID string) (*storage.ProductRating, error) {
	query := `
	SELECT product_id, score, confidence, sentiment_score, reliability_score,
		value_score, popularity_score, sources_analyzed, pros, cons, summary, calculated_at
	FROM product_ratings WHERE product_id = ?
	`

	var r storage.ProductRating
	var prosJSON, consJSON string
	err := b.db.QueryRowContext(ctx, query, productID).Scan(
		&r.ProductID, &r.Score, &r.Confidence, &r.SentimentScore, &r.ReliabilityScore,
		&r.ValueScore, &r.PopularityScore, &r.SourcesAnalyzed, &prosJSON, &consJSON,
		&r.Summary, &r.CalculatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query rating: %w", err)
	}

	if err := json.Unmarshal([]byte(prosJSON), &r.Pros); err != nil {
		return nil, fmt.Errorf("unmarshal pros: %w", err)
	}
	if err := json.Unmarshal([]byte(consJSON), &r.Cons); err != nil {
		return nil, fmt.Errorf("unmarshal cons: %w", err)
	}
	return &r, nil
}

func (b *sqliteBackend) StaleProducts(ctx context.Context, olderThan time.Time, limit int) ([]storage.Product, error) {
	query := `
	SELECT p.id, p.name, COALESCE(p.category, '')
	FROM products p
	LEFT JOIN product_ratings pr ON p.id = pr.product_id
	WHERE pr.calculated_at IS NULL OR pr.calculated_at < ?
	ORDER BY p.created_at DESC
	`
	args := []any{olderThan}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) TouchProduct(ctx context.Context, productID string, at time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE products SET last_scraped_at = ? WHERE id = ?`, at, productID)
	if err != nil {
		return fmt.Errorf("touch product: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
