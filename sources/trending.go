package sources

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`the a an and or for with from this that those these you your our us we of
to in on at by is are was were it its it's as be have has had not no but if then than about into
over under more most less few many new latest top breaking video watch review official ft vs vs.
live full`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

var nonKeyword = regexp.MustCompile(`[^A-Za-z0-9\s#]`)

// ExtractKeywords returns the max most frequent keywords across titles.
// Punctuation other than '#' is stripped, stopwords and tokens shorter than
// three characters are dropped, and ties keep first-seen order.
func ExtractKeywords(titles []string, max int) []string {
	counts := map[string]int{}
	var order []string
	for _, t := range titles {
		for _, w := range strings.Fields(nonKeyword.ReplaceAllString(t, "")) {
			lw := strings.ToLower(w)
			if len(lw) < 3 {
				continue
			}
			if _, stop := stopwords[lw]; stop {
				continue
			}
			if counts[lw] == 0 {
				order = append(order, lw)
			}
			counts[lw]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > max {
		order = order[:max]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// Trending is the keyword snapshot served by the trending endpoint.
type Trending struct {
	YouTube []string `json:"youtube"`
	Reddit  []string `json:"reddit"`
	Topics  []string `json:"topics"`
}

// YouTubeTitles lists popular video titles.
type YouTubeTitles interface {
	MostPopularTitles(ctx context.Context, region string, max int) ([]string, error)
}

// RedditTitles lists hot post titles of a subreddit.
type RedditTitles interface {
	HotTitles(ctx context.Context, sub string, limit int) ([]string, error)
}

// TrendingSource derives trending keywords from YouTube's popular chart
// and Reddit's r/popular.
type TrendingSource struct {
	YouTube YouTubeTitles
	Reddit  RedditTitles
}

const (
	trendingPerPlatform = 12
	trendingMaxTopics   = 20
)

// Trending never fails: an unavailable platform contributes no keywords.
func (s *TrendingSource) Trending(ctx context.Context) Trending {
	var yt, rd []string
	if s.YouTube != nil {
		yt, _ = s.YouTube.MostPopularTitles(ctx, "US", 15)
	}
	if s.Reddit != nil {
		rd, _ = s.Reddit.HotTitles(ctx, "popular", 25)
	}
	out := Trending{
		YouTube: ExtractKeywords(yt, trendingPerPlatform),
		Reddit:  ExtractKeywords(rd, trendingPerPlatform),
	}
	seen := map[string]struct{}{}
	out.Topics = []string{}
	for _, kw := range append(append([]string{}, out.YouTube...), out.Reddit...) {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out.Topics = append(out.Topics, kw)
		if len(out.Topics) == trendingMaxTopics {
			break
		}
	}
	return out
}
