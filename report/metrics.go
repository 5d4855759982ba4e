package report

// Metrics are counts over a set of scored items.
type Metrics struct {
	Total      int
	Scored     int
	Failed     int
	ByLabel    map[string]int
	ByPlatform map[string]int
	MeanScore  float64
}

// Summarize counts items per label and platform.
func Summarize(items []ScoredItem) Metrics {
	m := Metrics{ByLabel: map[string]int{}, ByPlatform: map[string]int{}}
	var sum float64
	for _, it := range items {
		m.Total++
		m.ByPlatform[string(it.Platform)]++
		if it.Sentiment == nil {
			m.Failed++
			continue
		}
		m.Scored++
		m.ByLabel[it.Sentiment.Label]++
		sum += it.Sentiment.Score
	}
	if m.Scored > 0 {
		m.MeanScore = sum / float64(m.Scored)
	}
	return m
}

// Map flattens m for JSON storage.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"total":       m.Total,
		"scored":      m.Scored,
		"failed":      m.Failed,
		"by_label":    m.ByLabel,
		"by_platform": m.ByPlatform,
		"mean_score":  m.MeanScore,
	}
}
