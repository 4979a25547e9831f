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

// ForumProfile describes one XenForo-style enthusiast forum.
type ForumProfile struct {
	Name       string
	BaseURL    string
	SearchPath string // fmt pattern receiving the url-escaped query
	Categories []string

	ThreadSelector string // anchors pointing at thread pages
	TitleSelector  string
	PostSelector   string // post body blocks within a thread
	AuthorSelector string
	ReplySelector  string // per-thread reply count on search pages, optional
}

// HeadFiProfile reads Head-Fi, the headphone enthusiast forum.
var HeadFiProfile = ForumProfile{
	Name:           "headfi",
	BaseURL:        "https://www.head-fi.org",
	SearchPath:     "/search/search?keywords=%s&c[content]=thread",
	Categories:     []string{"headphones", "audio"},
	ThreadSelector: "a[href*='/threads/']",
	TitleSelector:  "h1.p-title-value",
	PostSelector:   "article.message .bbWrapper",
	AuthorSelector: "article.message .message-name a",
}

// AVSForumProfile reads AVS Forum, covering home theater and display gear.
var AVSForumProfile = ForumProfile{
	Name:           "avsforum",
	BaseURL:        "https://www.avsforum.com",
	SearchPath:     "/search/?q=%s&o=relevance",
	Categories:     []string{"tv", "home-theater", "audio", "projectors"},
	ThreadSelector: "a[href*='/threads/']",
	TitleSelector:  "h1.p-title-value",
	PostSelector:   "article.message .bbWrapper",
	AuthorSelector: "article.message .message-name a",
}

// ForumAdapter scrapes discussion threads from one enthusiast forum. Each
// thread becomes one item built from its opening post and the first replies.
type ForumAdapter struct {
	profile ForumProfile
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

var _ Adapter = (*ForumAdapter)(nil)

// NewForum creates an adapter for the given forum profile.
func NewForum(profile ForumProfile, fetcher *fetch.Fetcher, logger *slog.Logger) *ForumAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForumAdapter{
		profile: profile,
		fetcher: fetcher,
		logger:  logger.With("forum", profile.Name),
	}
}

func (a *ForumAdapter) Type() string         { return storage.SourceForum }
func (a *ForumAdapter) Name() string         { return a.profile.Name }
func (a *ForumAdapter) Categories() []string { return a.profile.Categories }

func (a *ForumAdapter) Matches(pageURL string) bool {
	return strings.Contains(pageURL, urlMatchToken(a.profile.BaseURL))
}

// Search runs the forum search and scrapes the top matching threads.
func (a *ForumAdapter) Search(ctx context.Context, query string, limit int) ([]storage.Item, error) {
	searchURL := a.profile.BaseURL + fmt.Sprintf(a.profile.SearchPath, url.QueryEscape(query))

	res := a.fetcher.Fetch(ctx, searchURL)
	if !res.OK() {
		return nil, fmt.Errorf("%s search: %s", a.profile.Name, fetchFailure(res))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, fmt.Errorf("%s search: parse: %w", a.profile.Name, err)
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find(a.profile.ThreadSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		abs := a.absoluteURL(href)
		abs = threadRoot(abs)
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < limit
	})

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

// ScrapeOne scrapes one thread page.
func (a *ForumAdapter) ScrapeOne(ctx context.Context, pageURL string) (storage.Item, bool) {
	res := a.fetcher.Fetch(ctx, pageURL)
	if !res.OK() {
		a.logger.Debug("thread fetch failed", "url", pageURL, "reason", fetchFailure(res))
		return storage.Item{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		a.logger.Debug("thread parse failed", "url", pageURL, "err", err)
		return storage.Item{}, false
	}

	title := strings.TrimSpace(doc.Find(a.profile.TitleSelector).First().Text())

	// Opening post plus up to 5 replies.
	var posts []string
	postCount := 0
	doc.Find(a.profile.PostSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		text = truncateRunes(text, 1000)
		if i == 0 {
			posts = append(posts, "Post: "+text)
		} else {
			posts = append(posts, "Reply: "+text)
		}
		postCount++
		return postCount < 6
	})

	replies := doc.Find(a.profile.PostSelector).Length() - 1
	if replies < 0 {
		replies = 0
	}

	content := Normalize("Thread: " + title + " " + strings.Join(posts, " "))
	if content == "" || len(posts) == 0 {
		return storage.Item{}, false
	}

	author := strings.TrimSpace(doc.Find(a.profile.AuthorSelector).First().Text())

	return storage.Item{
		SourceType:   a.Type(),
		SourceURL:    pageURL,
		SourceName:   a.profile.Name,
		Content:      content,
		CommentCount: replies,
		Author:       author,
	}, true
}

func (a *ForumAdapter) absoluteURL(href string) string {
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

// threadRoot strips per-post anchors and page suffixes so multiple search
// hits inside one thread collapse to a single URL.
func threadRoot(threadURL string) string {
	if idx := strings.Index(threadURL, "#"); idx >= 0 {
		threadURL = threadURL[:idx]
	}
	if idx := strings.Index(threadURL, "/page-"); idx >= 0 {
		threadURL = threadURL[:idx]
	}
	if idx := strings.Index(threadURL, "/post-"); idx >= 0 {
		threadURL = threadURL[:idx]
	}
	return strings.TrimRight(threadURL, "/")
}
