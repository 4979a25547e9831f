package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testForumProfile(baseURL string) ForumProfile {
	return ForumProfile{
		Name:           "testforum",
		BaseURL:        baseURL,
		SearchPath:     "/search/?q=%s",
		Categories:     []string{"headphones"},
		ThreadSelector: "a[href*='/threads/']",
		TitleSelector:  "h1.p-title-value",
		PostSelector:   "article.message .bbWrapper",
		AuthorSelector: "article.message .message-name a",
	}
}

func forumHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/"):
			fmt.Fprint(w, `<html><body>
				<a href="/threads/xm5-impressions.123/">XM5 impressions</a>
				<a href="/threads/xm5-impressions.123/post-456">Same thread, later post</a>
				<a href="/threads/xm5-impressions.123/page-3">Same thread, page 3</a>
			</body></html>`)
		case strings.HasPrefix(r.URL.Path, "/threads/xm5-impressions.123"):
			fmt.Fprint(w, `<html><body>
				<h1 class="p-title-value">Sony XM5 impressions thread</h1>
				<article class="message">
					<div class="message-name"><a>threadstarter</a></div>
					<div class="bbWrapper">Just got these, the comfort is excellent.</div>
				</article>
				<article class="message">
					<div class="message-name"><a>replier</a></div>
					<div class="bbWrapper">Agreed, though the case feels cheap.</div>
				</article>
			</body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestForumSearch(t *testing.T) {
	srv := httptest.NewServer(forumHandler())
	defer srv.Close()

	adapter := NewForum(testForumProfile(srv.URL), newTestFetcher(t), nil)

	items, err := adapter.Search(context.Background(), "sony xm5", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after thread dedupe, got %d", len(items))
	}

	item := items[0]
	if item.SourceName != "testforum" {
		t.Errorf("unexpected source name %q", item.SourceName)
	}
	if !strings.Contains(item.Content, "comfort is excellent") {
		t.Errorf("opening post missing: %q", item.Content)
	}
	if !strings.Contains(item.Content, "case feels cheap") {
		t.Errorf("reply missing: %q", item.Content)
	}
	if item.CommentCount != 1 {
		t.Errorf("expected 1 reply counted, got %d", item.CommentCount)
	}
	if item.Author != "threadstarter" {
		t.Errorf("unexpected author %q", item.Author)
	}
}

func TestForumScrapeOne_EmptyThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1 class="p-title-value">Ghost thread</h1></body></html>`)
	}))
	defer srv.Close()

	adapter := NewForum(testForumProfile(srv.URL), newTestFetcher(t), nil)

	if _, ok := adapter.ScrapeOne(context.Background(), srv.URL+"/threads/ghost.1/"); ok {
		t.Fatal("expected failure when the thread has no posts")
	}
}

func TestForumCategoriesGating(t *testing.T) {
	adapter := NewForum(testForumProfile("https://example.com"), newTestFetcher(t), nil)

	if !AppliesTo(adapter, "headphones") {
		t.Error("expected forum to apply to its category")
	}
	if AppliesTo(adapter, "kitchen") {
		t.Error("expected forum to skip unrelated categories")
	}
}

func TestThreadRoot(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://f/threads/a.1/post-99", "https://f/threads/a.1"},
		{"https://f/threads/a.1/page-3", "https://f/threads/a.1"},
		{"https://f/threads/a.1/#post-99", "https://f/threads/a.1"},
		{"https://f/threads/a.1/", "https://f/threads/a.1"},
	}
	for _, tc := range cases {
		if got := threadRoot(tc.in); got != tc.want {
			t.Errorf("threadRoot(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
