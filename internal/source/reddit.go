package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopii/reviewrank/internal/fetch"
	"github.com/shopii/reviewrank/internal/storage"
)

// Subreddits consulted for any product query.
var generalSubreddits = []string{
	"BuyItForLife",
	"ProductTesting",
	"AskReddit",
	"AmazonTopRated",
}

// Category-specific subreddits, keyed by the query keywords that select them.
var categorySubreddits = map[string]struct {
	keywords   []string
	subreddits []string
}{
	"electronics": {
		keywords:   []string{"phone", "laptop", "computer", "tech", "electronic"},
		subreddits: []string{"BuyItForLife", "gadgets", "technology", "techsupport"},
	},
	"headphones": {
		keywords:   []string{"headphone", "earphone", "earbud", "audio", "speaker"},
		subreddits: []string{"headphones", "HeadphoneAdvice", "audiophile", "budgetaudiophile"},
	},
	"keyboards": {
		keywords:   []string{"keyboard", "keycap", "switch", "mechanical"},
		subreddits: []string{"MechanicalKeyboards", "keyboards", "ErgoMechKeyboards"},
	},
	"gaming": {
		keywords:   []string{"gaming", "game", "pc", "console", "monitor"},
		subreddits: []string{"pcgaming", "buildapc", "GamingLaptops", "pcmasterrace"},
	},
	"home": {
		keywords:   []string{"kitchen", "home", "appliance", "furniture"},
		subreddits: []string{"BuyItForLife", "HomeImprovement", "homeowners", "DIY"},
	},
	"fashion": {
		keywords:   []string{"shoe", "clothing", "jacket", "boot", "sneaker"},
		subreddits: []string{"malefashionadvice", "femalefashionadvice", "frugalmalefashion", "Sneakers"},
	},
	"fitness": {
		keywords:   []string{"gym", "fitness", "workout", "exercise", "running"},
		subreddits: []string{"homegym", "Fitness", "running", "cycling"},
	},
}

// RedditAdapter reads product discussion through Reddit's public JSON API.
type RedditAdapter struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	baseURL string
}

var _ Adapter = (*RedditAdapter)(nil)

// NewReddit creates the Reddit adapter. baseURL overrides the live API
// host; pass "" for the default.
func NewReddit(fetcher *fetch.Fetcher, logger *slog.Logger, baseURL string) *RedditAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://www.reddit.com"
	}
	return &RedditAdapter{
		fetcher: fetcher,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (a *RedditAdapter) Type() string         { return storage.SourceSocial }
func (a *RedditAdapter) Name() string         { return "reddit" }
func (a *RedditAdapter) Categories() []string { return nil }

func (a *RedditAdapter) Matches(pageURL string) bool {
	return strings.Contains(pageURL, "reddit.com")
}

// redditListing keeps children raw: the same envelope wraps both posts and
// comments.
type redditListing struct {
	Data struct {
		Children []struct {
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
}

type redditComment struct {
	Body  string `json:"body"`
	Score int    `json:"score"`
}

// Search queries Reddit's sitewide search and keeps posts from subreddits
// relevant to the query, letting a few off-topic but high-ranked posts
// through until half the limit is filled.
func (a *RedditAdapter) Search(ctx context.Context, query string, limit int) ([]storage.Item, error) {
	searchURL := fmt.Sprintf("%s/search.json?q=%s&sort=relevance&t=all&limit=%d",
		a.baseURL, url.QueryEscape(query), limit)

	res := a.fetcher.Fetch(ctx, searchURL)
	if !res.OK() {
		return nil, fmt.Errorf("reddit search: %s", fetchFailure(res))
	}

	var listing redditListing
	if err := json.Unmarshal(res.Body, &listing); err != nil {
		return nil, fmt.Errorf("reddit search: decode listing: %w", err)
	}

	relevant := a.subredditsForQuery(query)

	var items []storage.Item
	for _, child := range listing.Data.Children {
		var post redditPost
		if err := json.Unmarshal(child.Data, &post); err != nil {
			continue
		}

		if _, ok := relevant[strings.ToLower(post.Subreddit)]; !ok && len(items) >= limit/2 {
			continue
		}

		content := postContent(post, nil)
		items = append(items, storage.Item{
			SourceType:   a.Type(),
			SourceURL:    a.baseURL + post.Permalink,
			SourceName:   "r/" + post.Subreddit,
			Content:      Normalize(content),
			Upvotes:      post.Score,
			CommentCount: post.NumComments,
			Author:       post.Author,
			PostedAt:     time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}

	return finalize(items, limit), nil
}

// ScrapeOne fetches a single post page with its comment thread.
func (a *RedditAdapter) ScrapeOne(ctx context.Context, pageURL string) (storage.Item, bool) {
	res := a.fetcher.Fetch(ctx, strings.TrimRight(pageURL, "/")+".json")
	if !res.OK() {
		a.logger.Debug("reddit scrape failed", "url", pageURL, "reason", fetchFailure(res))
		return storage.Item{}, false
	}

	// A post page decodes as [postListing, commentListing].
	var listings []redditListing
	if err := json.Unmarshal(res.Body, &listings); err != nil || len(listings) == 0 ||
		len(listings[0].Data.Children) == 0 {
		a.logger.Debug("reddit scrape: unexpected payload", "url", pageURL)
		return storage.Item{}, false
	}

	var post redditPost
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		a.logger.Debug("reddit scrape: bad post payload", "url", pageURL, "err", err)
		return storage.Item{}, false
	}

	var comments []redditComment
	if len(listings) > 1 {
		for _, child := range listings[1].Data.Children {
			var c redditComment
			if json.Unmarshal(child.Data, &c) == nil && c.Body != "" && c.Score > 1 {
				comments = append(comments, c)
			}
			if len(comments) >= 10 {
				break
			}
		}
	}

	content := Normalize(postContent(post, comments))
	if content == "" {
		return storage.Item{}, false
	}

	return storage.Item{
		SourceType:   a.Type(),
		SourceURL:    pageURL,
		SourceName:   "r/" + post.Subreddit,
		Content:      content,
		Upvotes:      post.Score,
		CommentCount: post.NumComments,
		Author:       post.Author,
		PostedAt:     time.Unix(int64(post.CreatedUTC), 0).UTC(),
	}, true
}

func (a *RedditAdapter) subredditsForQuery(query string) map[string]struct{} {
	queryLower := strings.ToLower(query)

	subs := make(map[string]struct{})
	for _, s := range generalSubreddits {
		subs[strings.ToLower(s)] = struct{}{}
	}

	for _, group := range categorySubreddits {
		for _, kw := range group.keywords {
			if strings.Contains(queryLower, kw) {
				for _, s := range group.subreddits {
					subs[strings.ToLower(s)] = struct{}{}
				}
				break
			}
		}
	}

	return subs
}

func postContent(post redditPost, comments []redditComment) string {
	parts := []string{"Title: " + post.Title}

	if post.IsSelf && post.Selftext != "" {
		parts = append(parts, "Post: "+truncateRunes(post.Selftext, 2000))
	}

	for _, c := range comments {
		parts = append(parts, fmt.Sprintf("Comment (%d upvotes): %s", c.Score, truncateRunes(c.Body, 500)))
	}

	return strings.Join(parts, "\n\n")
}

// fetchFailure renders the reason a fetch result is unusable.
func fetchFailure(res *fetch.Result) string {
	switch {
	case res.Err != "":
		return res.Err
	case res.Blocked:
		return "blocked by " + res.BlockedBy
	default:
		return fmt.Sprintf("status %d", res.StatusCode)
	}
}
