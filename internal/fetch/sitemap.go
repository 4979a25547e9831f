package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// SitemapFetcher discovers page URLs from a site's sitemap. The editorial
// adapter uses it when a site's search page is blocked or missing.
type SitemapFetcher struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewSitemapFetcher initializes a SitemapFetcher on the shared fetcher.
func NewSitemapFetcher(fetcher *Fetcher, logger *slog.Logger) *SitemapFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapFetcher{fetcher: fetcher, logger: logger}
}

// FetchSitemap fetches a sitemap XML or sitemap index and returns every URL
// it lists, recursing into nested sitemaps.
func (s *SitemapFetcher) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL)

	result := s.fetcher.Fetch(ctx, sitemapURL)
	if result.Err != "" {
		return nil, fmt.Errorf("fetch sitemap: %s", result.Err)
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Errorf("bad status code: %d", result.StatusCode)
	}

	var urls []string
	err := sitemap.Parse(bytes.NewReader(result.Body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})

	if err != nil || len(urls) == 0 {
		// may be a sitemap index instead of a urlset
		var nested []string
		indexErr := sitemap.ParseIndex(bytes.NewReader(result.Body), func(e sitemap.IndexEntry) error {
			nested = append(nested, e.GetLocation())
			return nil
		})

		if indexErr != nil || (len(urls) == 0 && len(nested) == 0) {
			return nil, fmt.Errorf("parse as sitemap or index: %w", err)
		}

		for _, nestedURL := range nested {
			nestedURLs, fetchErr := s.FetchSitemap(ctx, nestedURL)
			if fetchErr != nil {
				s.logger.Warn("failed to fetch nested sitemap", "url", nestedURL, "err", fetchErr)
				continue
			}
			urls = append(urls, nestedURLs...)
		}
	}

	return urls, nil
}
