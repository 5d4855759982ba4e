package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/queue"
	"github.com/KamdynS/sentiant/report"
	"github.com/KamdynS/sentiant/sentiment"
	"github.com/KamdynS/sentiant/session"
	"github.com/KamdynS/sentiant/sources"
	"github.com/KamdynS/sentiant/state"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrInvalidRequest), errors.Is(err, sentiment.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrNoArticles), errors.Is(err, state.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, sources.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, report.ErrSourceUnavailable), errors.Is(err, llm.ErrExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrFatal), errors.Is(err, llm.ErrFormat):
		return http.StatusBadGateway
	}
	var se *sources.StatusError
	var ae *sentiment.APIError
	if errors.As(err, &se) || errors.As(err, &ae) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	s.sendError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.sendError(w, http.StatusBadRequest, "text is required")
		return
	}
	score, err := s.reports.AnalyzeText(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, score)
}

type resultsResponse struct {
	Results []report.ScoredItem `json:"results"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, p sources.Platform, q sources.Query) {
	if strings.TrimSpace(q.Text) == "" {
		s.sendError(w, http.StatusBadRequest, "query is required")
		return
	}
	f, ok := s.reports.Fetcher(p)
	if !ok {
		s.sendError(w, http.StatusServiceUnavailable, string(p)+" source is not configured")
		return
	}
	items, err := s.reports.AnalyzePlatform(r.Context(), f, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resultsResponse{Results: items})
}

func (s *Server) handleRedditSentiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subreddit string `json:"subreddit"`
		Query     string `json:"query"`
		Limit     int    `json:"limit"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	s.analyze(w, r, sources.PlatformReddit, sources.Query{Text: req.Query, Subreddit: req.Subreddit, Limit: req.Limit})
}

func (s *Server) handleYouTubeSentiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query               string `json:"query"`
		MaxVideos           int    `json:"max_videos"`
		MaxCommentsPerVideo int    `json:"max_comments_per_video"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.MaxVideos <= 0 {
		req.MaxVideos = 2
	}
	if req.MaxCommentsPerVideo <= 0 {
		req.MaxCommentsPerVideo = 5
	}
	s.analyze(w, r, sources.PlatformYouTube, sources.Query{
		Text: req.Query, MaxVideos: req.MaxVideos, MaxCommentsPerVideo: req.MaxCommentsPerVideo,
	})
}

func (s *Server) handleTweetsSentiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	s.analyze(w, r, sources.PlatformTwitter, sources.Query{Text: req.Query, Limit: req.MaxResults})
}

type generateReportRequest struct {
	Topic                 string              `json:"topic"`
	CommentsWithSentiment []report.ScoredItem `json:"comments_with_sentiment"`
}

type reportResponse struct {
	Report string `json:"report"`
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		s.sendError(w, http.StatusBadRequest, "topic is required")
		return
	}
	text, err := s.reports.GenerateReport(r.Context(), req.Topic, req.CommentsWithSentiment)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, reportResponse{Report: text})
}

// chargeSession spends one credit when the request names a session. It
// reports false after writing an error response.
func (s *Server) chargeSession(w http.ResponseWriter, r *http.Request) bool {
	id := r.Header.Get(SessionHeader)
	if id == "" || s.sessions == nil {
		return true
	}
	if _, err := s.sessions.UseCredit(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return false
	}
	return true
}

func (s *Server) handleFullReport(w http.ResponseWriter, r *http.Request) {
	var req report.FullReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.chargeSession(w, r) {
		return
	}
	out, err := s.reports.FullReport(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		s.sendError(w, http.StatusBadRequest, "topic is required")
		return
	}
	out, err := s.reports.NewsSummary(r.Context(), req.Topic)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.Trending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, out)
}

type creditsResponse struct {
	CreditsRemaining int  `json:"credits_remaining"`
	SessionValid     bool `json:"session_valid"`
}

type useCreditResponse struct {
	Success          bool   `json:"success"`
	CreditsRemaining int    `json:"credits_remaining"`
	Message          string `json:"message"`
}

func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		s.sendError(w, http.StatusServiceUnavailable, "sessions are not enabled")
		return false
	}
	return true
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "Session ID required in "+SessionHeader+" header")
		return "", false
	}
	return id, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	sess, err := s.sessions.CreateSession(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	n, err := session.GetCredits(r.Context(), s.sessions, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, creditsResponse{CreditsRemaining: n, SessionValid: true})
}

func (s *Server) handleUseCredit(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	left, err := s.sessions.UseCredit(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNoCredits):
		s.sendError(w, http.StatusPaymentRequired, "No credits remaining. Please sign up to continue.")
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, useCreditResponse{
		Success:          true,
		CreditsRemaining: left,
		Message:          strconv.Itoa(left) + " credits remaining",
	})
}

type enqueueResponse struct {
	JobID  string          `json:"job_id"`
	Status state.JobStatus `json:"status"`
}

func (s *Server) handleEnqueueReport(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil || s.jobs == nil {
		s.sendError(w, http.StatusServiceUnavailable, "async reports are not enabled")
		return
	}
	var req report.FullReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.chargeSession(w, r) {
		return
	}
	job, err := queue.NewJob(queue.KindFullReport, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if id := r.Header.Get(SessionHeader); id != "" {
		job.Metadata["session_id"] = id
	}
	st := state.NewJobState(job.ID, req.Topic, s.now())
	if err := s.jobs.SaveJob(r.Context(), st); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), s.queueName, job); err != nil {
		st.MarkFailed(err, s.now())
		_ = s.jobs.SaveJob(context.WithoutCancel(r.Context()), st)
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusAccepted, enqueueResponse{JobID: job.ID, Status: st.Status})
}

func (s *Server) handleGetReportJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.sendError(w, http.StatusServiceUnavailable, "async reports are not enabled")
		return
	}
	st, err := s.jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, st)
}
