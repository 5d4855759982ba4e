package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KamdynS/sentiant/report"
)

func newReportCommand(a *app) *cobra.Command {
	var req report.FullReportRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a full report for a topic and print it",
		Example: `  sentiant report --topic "electric cars"
  sentiant report --topic golang --subreddit golang --reddit-limit 20 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.reportService(cmd.Context())
			if err != nil {
				return err
			}
			out, err := svc.FullReport(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			if len(out.Partial) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no data from %v\n", out.Partial)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Report)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Topic, "topic", "", "Topic to analyze")
	f.StringVar(&req.RedditSubreddit, "subreddit", "all", "Subreddit to search")
	f.IntVar(&req.RedditLimit, "reddit-limit", 10, "Maximum Reddit comments")
	f.IntVar(&req.YouTubeMaxVideos, "youtube-videos", 2, "Maximum YouTube videos")
	f.IntVar(&req.YouTubeMaxCommentsPerVideo, "youtube-comments", 5, "Maximum comments per video")
	f.IntVar(&req.TwitterMaxResults, "twitter-limit", 10, "Maximum tweets")
	f.BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
