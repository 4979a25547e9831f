package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testEditorialProfile(baseURL string) SiteProfile {
	return SiteProfile{
		Name:            "testsite",
		BaseURL:         baseURL,
		SearchPath:      "/search?q=%s",
		ResultSelector:  "a.result",
		ResultFilter:    "/reviews/",
		TitleSelector:   "h1",
		ContentSelector: "article p",
		AuthorSelector:  ".byline",
	}
}

func editorialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search"):
			fmt.Fprint(w, `<html><body>
				<a class="result" href="/reviews/sony-xm5">Sony XM5 review</a>
				<a class="result" href="/news/unrelated">News item</a>
				<a class="result" href="/reviews/sony-xm5">Duplicate</a>
			</body></html>`)
		case r.URL.Path == "/reviews/sony-xm5":
			fmt.Fprint(w, `<html><body>
				<h1>Sony WH-1000XM5 Review</h1>
				<div class="byline">Jane Reviewer</div>
				<article>
					<p>The noise cancelling is class leading.</p>
					<p>Battery life exceeds thirty hours.</p>
				</article>
			</body></html>`)
		case r.URL.Path == "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestEditorialSearch(t *testing.T) {
	srv := httptest.NewServer(editorialHandler())
	defer srv.Close()

	adapter := NewEditorial(testEditorialProfile(srv.URL), newTestFetcher(t), nil, nil, nil)

	items, err := adapter.Search(context.Background(), "sony xm5", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.SourceName != "testsite" {
		t.Errorf("unexpected source name %q", item.SourceName)
	}
	if !strings.Contains(item.Content, "class leading") {
		t.Errorf("article body missing: %q", item.Content)
	}
	if !strings.Contains(item.Content, "Sony WH-1000XM5 Review") {
		t.Errorf("title missing: %q", item.Content)
	}
	if item.Author != "Jane Reviewer" {
		t.Errorf("unexpected author %q", item.Author)
	}
}

func TestEditorialScrapeOne_MissingPage(t *testing.T) {
	srv := httptest.NewServer(editorialHandler())
	defer srv.Close()

	adapter := NewEditorial(testEditorialProfile(srv.URL), newTestFetcher(t), nil, nil, nil)

	if _, ok := adapter.ScrapeOne(context.Background(), srv.URL+"/reviews/nope"); ok {
		t.Fatal("expected failure on 404")
	}
}

func TestEditorialScrapeOne_EmptyArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Title only</h1></body></html>`)
	}))
	defer srv.Close()

	adapter := NewEditorial(testEditorialProfile(srv.URL), newTestFetcher(t), nil, nil, nil)

	if _, ok := adapter.ScrapeOne(context.Background(), srv.URL+"/reviews/empty"); ok {
		t.Fatal("expected failure when no paragraphs matched")
	}
}

func TestEditorialSearch_SitemapFallbackOnBlock(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search"):
			// Cloudflare-style challenge page triggers the block detector.
			w.Header().Set("Server", "cloudflare")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Attention Required! | Cloudflare")
		case r.URL.Path == "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s/sitemap.xml\n", srvURL)
		case r.URL.Path == "/sitemap.xml":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<url><loc>%s/reviews/sony-xm5</loc></url>
	<url><loc>%s/reviews/other-product</loc></url>
</urlset>`, srvURL, srvURL)
		case r.URL.Path == "/reviews/sony-xm5":
			fmt.Fprint(w, `<html><body>
				<h1>Sony XM5</h1>
				<article><p>Found via sitemap.</p></article>
			</body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	fetcher := newTestFetcher(t)
	robots := newTestRobots(t, fetcher)
	sitemaps := newTestSitemaps(fetcher)

	adapter := NewEditorial(testEditorialProfile(srv.URL), fetcher, robots, sitemaps, nil)

	items, err := adapter.Search(context.Background(), "sony xm5", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item via sitemap fallback, got %d", len(items))
	}
	if !strings.Contains(items[0].Content, "Found via sitemap") {
		t.Errorf("wrong page scraped: %q", items[0].Content)
	}
}
