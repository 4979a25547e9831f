package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopii/reviewrank/internal/fetch"
	"github.com/shopii/reviewrank/internal/storage"
)

// YouTubeAdapter collects opinion from review-video comment sections via
// the YouTube Data API v3. One item is produced per video, carrying the
// video metadata plus its top comments.
type YouTubeAdapter struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	apiKey  string
	baseURL string
}

var _ Adapter = (*YouTubeAdapter)(nil)

// NewYouTube creates the adapter. baseURL overrides the API host for
// tests; pass "" for the default.
func NewYouTube(fetcher *fetch.Fetcher, logger *slog.Logger, apiKey, baseURL string) *YouTubeAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	return &YouTubeAdapter{
		fetcher: fetcher,
		logger:  logger,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (a *YouTubeAdapter) Type() string         { return storage.SourceVideo }
func (a *YouTubeAdapter) Name() string         { return "youtube" }
func (a *YouTubeAdapter) Categories() []string { return nil }

func (a *YouTubeAdapter) Matches(pageURL string) bool {
	return strings.Contains(pageURL, "youtube.com") || strings.Contains(pageURL, "youtu.be")
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type ytCommentsResponse struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string `json:"textDisplay"`
					LikeCount   int    `json:"likeCount"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search finds review videos for the query and builds one item per video
// from its statistics and top comments.
func (a *YouTubeAdapter) Search(ctx context.Context, query string, limit int) ([]storage.Item, error) {
	if a.apiKey == "" {
		return nil, nil // adapter not configured, contributes nothing
	}

	maxVideos := limit
	if maxVideos > 10 {
		maxVideos = 10
	}

	searchURL := fmt.Sprintf("%s/search?part=id,snippet&q=%s&type=video&order=relevance&relevanceLanguage=en&maxResults=%d&key=%s",
		a.baseURL, url.QueryEscape(query+" review"), maxVideos, a.apiKey)

	res := a.fetcher.Fetch(ctx, searchURL)
	if !res.OK() {
		return nil, fmt.Errorf("youtube search: %s", fetchFailure(res))
	}

	var search ytSearchResponse
	if err := json.Unmarshal(res.Body, &search); err != nil {
		return nil, fmt.Errorf("youtube search: decode: %w", err)
	}

	var items []storage.Item
	for _, v := range search.Items {
		if v.ID.VideoID == "" {
			continue
		}
		item, ok := a.videoItem(ctx, v.ID.VideoID, v.Snippet.Title, v.Snippet.ChannelTitle)
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

// ScrapeOne builds an item from a specific video URL.
func (a *YouTubeAdapter) ScrapeOne(ctx context.Context, pageURL string) (storage.Item, bool) {
	if a.apiKey == "" {
		return storage.Item{}, false
	}

	videoID := videoIDFromURL(pageURL)
	if videoID == "" {
		return storage.Item{}, false
	}

	videosURL := fmt.Sprintf("%s/videos?part=snippet,statistics&id=%s&key=%s", a.baseURL, videoID, a.apiKey)
	res := a.fetcher.Fetch(ctx, videosURL)
	if !res.OK() {
		a.logger.Debug("youtube scrape failed", "url", pageURL, "reason", fetchFailure(res))
		return storage.Item{}, false
	}

	var videos ytVideosResponse
	if err := json.Unmarshal(res.Body, &videos); err != nil || len(videos.Items) == 0 {
		return storage.Item{}, false
	}

	v := videos.Items[0]
	return a.videoItem(ctx, videoID, v.Snippet.Title, v.Snippet.ChannelTitle)
}

// videoItem assembles the per-video item: statistics plus up to 5 top
// comments. Comments may be disabled, in which case the item carries the
// video metadata alone.
func (a *YouTubeAdapter) videoItem(ctx context.Context, videoID, title, channel string) (storage.Item, bool) {
	statsURL := fmt.Sprintf("%s/videos?part=statistics&id=%s&key=%s", a.baseURL, videoID, a.apiKey)
	statsRes := a.fetcher.Fetch(ctx, statsURL)

	var viewCount, likeCount, commentCount int
	if statsRes.OK() {
		var videos ytVideosResponse
		if json.Unmarshal(statsRes.Body, &videos) == nil && len(videos.Items) > 0 {
			stats := videos.Items[0].Statistics
			viewCount, _ = strconv.Atoi(stats.ViewCount)
			likeCount, _ = strconv.Atoi(stats.LikeCount)
			commentCount, _ = strconv.Atoi(stats.CommentCount)
		}
	}

	parts := []string{
		"Video: " + title,
		"Channel: " + channel,
		fmt.Sprintf("Views: %d", viewCount),
		fmt.Sprintf("Likes: %d", likeCount),
		"",
		"Top Comments:",
	}

	totalCommentLikes := 0
	commentsURL := fmt.Sprintf("%s/commentThreads?part=snippet&videoId=%s&order=relevance&textFormat=plainText&maxResults=5&key=%s",
		a.baseURL, videoID, a.apiKey)
	commentsRes := a.fetcher.Fetch(ctx, commentsURL)
	if commentsRes.OK() {
		var comments ytCommentsResponse
		if json.Unmarshal(commentsRes.Body, &comments) == nil {
			for _, c := range comments.Items {
				snippet := c.Snippet.TopLevelComment.Snippet
				text := truncateRunes(snippet.TextDisplay, 500)
				totalCommentLikes += snippet.LikeCount
				parts = append(parts, fmt.Sprintf("- (%d likes) %s", snippet.LikeCount, text))
			}
		}
	} else {
		a.logger.Debug("youtube comments unavailable", "video", videoID, "reason", fetchFailure(commentsRes))
	}

	content := Normalize(strings.Join(parts, "\n"))
	if content == "" {
		return storage.Item{}, false
	}

	return storage.Item{
		SourceType:   a.Type(),
		SourceURL:    "https://www.youtube.com/watch?v=" + videoID,
		SourceName:   channel,
		Content:      content,
		Upvotes:      totalCommentLikes,
		CommentCount: commentCount,
	}, true
}

func videoIDFromURL(pageURL string) string {
	if idx := strings.Index(pageURL, "youtube.com/watch?v="); idx >= 0 {
		id := pageURL[idx+len("youtube.com/watch?v="):]
		if amp := strings.IndexByte(id, '&'); amp >= 0 {
			id = id[:amp]
		}
		return id
	}
	if idx := strings.Index(pageURL, "youtu.be/"); idx >= 0 {
		id := pageURL[idx+len("youtu.be/"):]
		if q := strings.IndexByte(id, '?'); q >= 0 {
			id = id[:q]
		}
		return id
	}
	return ""
}
