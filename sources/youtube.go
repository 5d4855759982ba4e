package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// YouTubeConfig configures the Data API v3 client.
type YouTubeConfig struct {
	APIKey     string
	APIBase    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// YouTube searches videos and collects their top-level comments.
type YouTube struct {
	cfg YouTubeConfig
	hc  *http.Client
	log *zap.Logger
}

var _ Fetcher = (*YouTube)(nil)

// NewYouTube returns a client; the API key is required.
func NewYouTube(cfg YouTubeConfig) (*YouTube, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube: API key is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = youtubeAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &YouTube{cfg: cfg, hc: defaultHTTPClient(cfg.HTTPClient), log: log}, nil
}

func (y *YouTube) Platform() Platform { return PlatformYouTube }

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type ytCommentThreads struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				ID      string `json:"id"`
				Snippet struct {
					TextDisplay       string `json:"textDisplay"`
					AuthorDisplayName string `json:"authorDisplayName"`
					PublishedAt       string `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideos struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// Fetch searches up to q.MaxVideos videos (default 3) and returns up to
// q.MaxCommentsPerVideo comments (default 10, at most 100) from each. A video
// whose comments can't be read is skipped; a failed search is an error.
func (y *YouTube) Fetch(ctx context.Context, q Query) ([]Item, error) {
	maxVideos := q.MaxVideos
	if maxVideos <= 0 {
		maxVideos = 3
	}
	perVideo := q.MaxCommentsPerVideo
	if perVideo <= 0 {
		perVideo = 10
	}

	var search ytSearchResponse
	err := y.get(ctx, "search", url.Values{
		"part":       {"id"},
		"type":       {"video"},
		"q":          {q.Text},
		"maxResults": {strconv.Itoa(maxVideos)},
	}, &search)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, v := range search.Items {
		videoID := v.ID.VideoID
		if videoID == "" {
			continue
		}
		comments, err := y.comments(ctx, videoID, perVideo)
		if err != nil {
			y.log.Warn("skipping video comments", zap.String("video_id", videoID), zap.Error(err))
			continue
		}
		items = append(items, comments...)
	}
	return items, nil
}

func (y *YouTube) comments(ctx context.Context, videoID string, max int) ([]Item, error) {
	var threads ytCommentThreads
	err := y.get(ctx, "commentThreads", url.Values{
		"part":       {"snippet"},
		"videoId":    {videoID},
		"maxResults": {strconv.Itoa(clamp(max, 1, 100))},
		"textFormat": {"plainText"},
	}, &threads)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(threads.Items))
	for _, th := range threads.Items {
		if len(out) >= max {
			break
		}
		c := th.Snippet.TopLevelComment
		ts, _ := time.Parse(time.RFC3339, c.Snippet.PublishedAt)
		out = append(out, Item{
			Platform:  PlatformYouTube,
			ID:        c.ID,
			Text:      c.Snippet.TextDisplay,
			Author:    c.Snippet.AuthorDisplayName,
			Timestamp: ts,
			Metadata:  map[string]string{"video_id": videoID, "comment_id": c.ID},
		})
	}
	return out, nil
}

// MostPopularTitles returns titles from the mostPopular chart for region.
func (y *YouTube) MostPopularTitles(ctx context.Context, region string, max int) ([]string, error) {
	var videos ytVideos
	err := y.get(ctx, "videos", url.Values{
		"part":       {"snippet"},
		"chart":      {"mostPopular"},
		"regionCode": {region},
		"maxResults": {strconv.Itoa(clamp(max, 1, 50))},
	}, &videos)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(videos.Items))
	for _, v := range videos.Items {
		if v.Snippet.Title != "" {
			titles = append(titles, v.Snippet.Title)
		}
	}
	return titles, nil
}

func (y *YouTube) get(ctx context.Context, resource string, params url.Values, out any) error {
	params.Set("key", y.cfg.APIKey)
	return getJSON(ctx, y.hc, "youtube", y.cfg.APIBase+"/"+resource+"?"+params.Encode(), nil, out)
}
