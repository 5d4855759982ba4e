// Package server exposes the sentiment, report and session HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/sentiant/queue"
	"github.com/KamdynS/sentiant/report"
	"github.com/KamdynS/sentiant/session"
	"github.com/KamdynS/sentiant/state"
)

// SessionHeader carries the guest session id.
const SessionHeader = "X-Session-Id"

const maxBodyBytes = 1 << 20

// Server serves the HTTP API.
type Server struct {
	reports     *report.Service
	sessions    session.Store
	queue       queue.Queue
	queueName   string
	jobs        state.Store
	allowOrigin string
	log         *zap.Logger
	now         func() time.Time
	httpServer  *http.Server
}

// Config holds server configuration. Sessions, Queue and Jobs are optional;
// their endpoints answer 503 when unset.
type Config struct {
	Addr         string
	Reports      *report.Service
	Sessions     session.Store
	Queue        queue.Queue
	QueueName    string
	Jobs         state.Store
	AllowOrigin  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// New creates the API server.
func New(cfg Config) (*Server, error) {
	if cfg.Reports == nil {
		return nil, fmt.Errorf("report service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.QueueName == "" {
		cfg.QueueName = queue.DefaultName
	}
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "http://localhost:3000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	// full reports wait on several upstreams and the LLM
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		reports:     cfg.Reports,
		sessions:    cfg.Sessions,
		queue:       cfg.Queue,
		queueName:   cfg.QueueName,
		jobs:        cfg.Jobs,
		allowOrigin: cfg.AllowOrigin,
		log:         cfg.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /analyze-sentiment", s.handleAnalyzeSentiment)
	mux.HandleFunc("POST /analyze-reddit-sentiment", s.handleRedditSentiment)
	mux.HandleFunc("POST /analyze-youtube-sentiment", s.handleYouTubeSentiment)
	mux.HandleFunc("POST /analyze-tweets-sentiment", s.handleTweetsSentiment)
	mux.HandleFunc("POST /generate-report", s.handleGenerateReport)
	mux.HandleFunc("POST /generate-full-report", s.handleFullReport)
	mux.HandleFunc("POST /analyze-news-info", s.handleNews)
	mux.HandleFunc("GET /trending", s.handleTrending)

	mux.HandleFunc("POST /session/create", s.handleCreateSession)
	mux.HandleFunc("GET /session/credits", s.handleGetCredits)
	mux.HandleFunc("POST /session/use-credit", s.handleUseCredit)

	mux.HandleFunc("POST /reports", s.handleEnqueueReport)
	mux.HandleFunc("GET /reports/{id}", s.handleGetReportJob)

	return s.withLogging(s.withCORS(mux))
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
