package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shopii/reviewrank/internal/fetch"
	"github.com/shopii/reviewrank/internal/storage"
)

// SiteProfile describes how to navigate one editorial review site: where
// its search lives, which selectors lift result links and article text, and
// what categories it covers.
type SiteProfile struct {
	Name       string
	BaseURL    string
	SearchPath string // fmt pattern receiving the url-escaped query
	Categories []string

	// Search result page selectors.
	ResultSelector string // anchors pointing at review articles
	ResultFilter   string // substring a result href must contain, "" for any

	// Article page selectors.
	TitleSelector   string
	ContentSelector string
	AuthorSelector  string
}

// WirecutterProfile reads NYT Wirecutter reviews.
var WirecutterProfile = SiteProfile{
	Name:            "wirecutter",
	BaseURL:         "https://www.nytimes.com/wirecutter",
	SearchPath:      "/search/?s=%s",
	ResultSelector:  "a[href*='/reviews/']",
	ResultFilter:    "/reviews/",
	TitleSelector:   "h1",
	ContentSelector: "article p",
	AuthorSelector:  "[class*='byline'] a",
}

// RTINGSProfile reads RTINGS lab reviews, which cover audio and display
// products only.
var RTINGSProfile = SiteProfile{
	Name:            "rtings",
	BaseURL:         "https://www.rtings.com",
	SearchPath:      "/search?q=%s",
	Categories:      []string{"headphones", "audio", "tv", "monitors"},
	ResultSelector:  "a.searchbar_results-item",
	TitleSelector:   "h1",
	ContentSelector: ".product_page-body p, .review-body p",
	AuthorSelector:  ".product_page-contributors a",
}

// TechRadarProfile reads TechRadar reviews.
var TechRadarProfile = SiteProfile{
	Name:            "techradar",
	BaseURL:         "https://www.techradar.com",
	SearchPath:      "/search?searchTerm=%s",
	ResultSelector:  "a.article-link",
	ResultFilter:    "review",
	TitleSelector:   "h1",
	ContentSelector: "#article-body p",
	AuthorSelector:  ".author-byline__author-name",
}

// EditorialAdapter scrapes professional review articles from one site
// described by a SiteProfile. Site search is tried first; when the search
// page is blocked the adapter falls back to the site's sitemap and matches
// review URLs against the query slug.
type EditorialAdapter struct {
	profile  SiteProfile
	fetcher  *fetch.Fetcher
	robots   *fetch.RobotsAuditor
	sitemaps *fetch.SitemapFetcher
	logger   *slog.Logger
}

var _ Adapter = (*EditorialAdapter)(nil)

// NewEditorial creates an adapter for the given site profile. robots and
// sitemaps may be nil, which disables the robots check and the sitemap
// fallback respectively.
func NewEditorial(profile SiteProfile, fetcher *fetch.Fetcher, robots *fetch.RobotsAuditor, sitemaps *fetch.SitemapFetcher, logger *slog.Logger) *EditorialAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditorialAdapter{
		profile:  profile,
		fetcher:  fetcher,
		robots:   robots,
		sitemaps: sitemaps,
		logger:   logger.With("site", profile.Name),
	}
}

func (a *EditorialAdapter) Type() string         { return storage.SourceEditorial }
func (a *EditorialAdapter) Name() string         { return a.profile.Name }
func (a *EditorialAdapter) Categories() []string { return a.profile.Categories }

func (a *EditorialAdapter) Matches(pageURL string) bool {
	return strings.Contains(pageURL, urlMatchToken(a.profile.BaseURL))
}

// Search runs the site's own search and scrapes the top matching review
// articles.
func (a *EditorialAdapter) Search(ctx context.Context, query string, limit int) ([]storage.Item, error) {
	links, err := a.searchLinks(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	var items []storage.Item
	for _, link := range links {
		item, ok := a.ScrapeOne(ctx, link)
		if !ok {
			continue
		}
		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}

	return finalize(items, limit), nil
}

// ScrapeOne scrapes a single review article.
func (a *EditorialAdapter) ScrapeOne(ctx context.Context, pageURL string) (storage.Item, bool) {
	if !a.allowed(ctx, pageURL) {
		a.logger.Debug("skipping disallowed url", "url", pageURL)
		return storage.Item{}, false
	}

	res := a.fetcher.Fetch(ctx, pageURL)
	if !res.OK() {
		a.logger.Debug("article fetch failed", "url", pageURL, "reason", fetchFailure(res))
		return storage.Item{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		a.logger.Debug("article parse failed", "url", pageURL, "err", err)
		return storage.Item{}, false
	}

	title := strings.TrimSpace(doc.Find(a.profile.TitleSelector).First().Text())

	var paragraphs []string
	doc.Find(a.profile.ContentSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	content := Normalize(title + " " + strings.Join(paragraphs, " "))
	if content == "" || len(paragraphs) == 0 {
		return storage.Item{}, false
	}

	author := strings.TrimSpace(doc.Find(a.profile.AuthorSelector).First().Text())

	return storage.Item{
		SourceType: a.Type(),
		SourceURL:  pageURL,
		SourceName: a.profile.Name,
		Content:    content,
		Author:     author,
	}, true
}

// searchLinks resolves candidate article URLs, via site search when it
// works and the sitemap when it is blocked.
func (a *EditorialAdapter) searchLinks(ctx context.Context, query string, limit int) ([]string, error) {
	searchURL := a.profile.BaseURL + fmt.Sprintf(a.profile.SearchPath, url.QueryEscape(query))

	res := a.fetcher.Fetch(ctx, searchURL)
	if res.Blocked {
		a.logger.Info("search blocked, falling back to sitemap", "by", res.BlockedBy)
		return a.sitemapLinks(ctx, query, limit)
	}
	if !res.OK() {
		return nil, fmt.Errorf("%s search: %s", a.profile.Name, fetchFailure(res))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, fmt.Errorf("%s search: parse: %w", a.profile.Name, err)
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find(a.profile.ResultSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		if a.profile.ResultFilter != "" && !strings.Contains(href, a.profile.ResultFilter) {
			return true
		}
		abs := a.absoluteURL(href)
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < limit
	})

	return links, nil
}

// sitemapLinks matches the query slug against review URLs from the site's
// sitemaps declared in robots.txt.
func (a *EditorialAdapter) sitemapLinks(ctx context.Context, query string, limit int) ([]string, error) {
	if a.robots == nil || a.sitemaps == nil {
		return nil, nil
	}

	host := a.profile.BaseURL
	if u, err := url.Parse(a.profile.BaseURL); err == nil {
		host = u.Scheme + "://" + u.Host
	}

	sitemapURLs, err := a.robots.Sitemaps(ctx, host)
	if err != nil || len(sitemapURLs) == 0 {
		return nil, nil
	}

	slug := querySlug(query)

	var links []string
	for _, sm := range sitemapURLs {
		pageURLs, err := a.sitemaps.FetchSitemap(ctx, sm)
		if err != nil {
			a.logger.Debug("sitemap fetch failed", "url", sm, "err", err)
			continue
		}
		for _, pu := range pageURLs {
			if strings.Contains(pu, slug) {
				links = append(links, pu)
				if len(links) >= limit {
					return links, nil
				}
			}
		}
	}

	return links, nil
}

func (a *EditorialAdapter) allowed(ctx context.Context, pageURL string) bool {
	if a.robots == nil {
		return true
	}
	ok, err := a.robots.IsAllowed(ctx, pageURL, "reviewrank")
	if err != nil {
		return true
	}
	return ok
}

func (a *EditorialAdapter) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(a.profile.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
