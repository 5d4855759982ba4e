package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/sources"
)

// BuildReportMessages renders the analyst prompt for topic over items.
func BuildReportMessages(topic string, items []ScoredItem) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert analyst. Given the following comments and their sentiment scores about '%s', ", topic)
	b.WriteString("generate a detailed summary and report. The report should include:\n")
	b.WriteString("- An overall sentiment summary (positive/negative/neutral)\n")
	b.WriteString("- Key themes or opinions\n")
	b.WriteString("- Any notable trends or anomalies\n")
	b.WriteString("- A concise summary for an executive\n\n")
	b.WriteString("Comments and Sentiments:\n")
	for _, it := range items {
		label, score := "unavailable", "n/a"
		if it.Sentiment != nil {
			label = it.Sentiment.Label
			score = strconv.FormatFloat(it.Sentiment.Score, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "\n- Comment: %s\n  Sentiment: %s (score: %s)", it.Text, label, score)
	}
	b.WriteString("\n\nSummary and Report:")
	return []llm.Message{llm.UserMessage(b.String())}
}

// BuildNewsMessages renders the news analyst prompt.
func BuildNewsMessages(topic string, articles []sources.Article) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert news analyst. Given the following news articles about '%s', ", topic)
	b.WriteString("analyze and summarize the key points, trends, and any notable insights.\n\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "Article %d:\nTitle: %s\nDescription: %s\nContent: %s\n\n", i+1, a.Title, a.Description, a.Content)
	}
	b.WriteString("\nSummary and Analysis:")
	return []llm.Message{llm.UserMessage(b.String())}
}
