// Package devbackend is a local stand-in for the reasoning service. It serves
// the same HTTP API as the real backend and reasons with a configured
// language-model provider, so the client can be run end to end without one.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/providers/llm"
	"github.com/example/goalrunner/internal/tools"
)

const DefaultMaxUploadBytes = 10 << 20

type Config struct {
	// Token is the bearer token callers must present. Empty accepts any.
	Token string
	// PublicURL prefixes upload urls. Defaults to the request's host.
	PublicURL      string
	MaxUploadBytes int64
	// FetchClient is used by the fetch action.
	FetchClient *http.Client
	Logger      *zap.Logger
}

type Server struct {
	llm   llm.Client
	tools *tools.Registry
	cfg   Config
	log   *zap.Logger

	mu      sync.RWMutex
	uploads map[string]upload

	newID func() string
}

type upload struct {
	data        []byte
	contentType string
}

func New(client llm.Client, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Server{
		llm:     client,
		tools:   tools.Default(client, cfg.FetchClient),
		cfg:     cfg,
		log:     lg.Named("devbackend"),
		uploads: map[string]upload{},
		newID:   uuid.NewString,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+backend.PathStart, s.handleStart)
	mux.HandleFunc("POST "+backend.PathCreate, s.handleCreate)
	mux.HandleFunc("POST "+backend.PathAnalyze, s.handleAnalyze)
	mux.HandleFunc("POST "+backend.PathExecute, s.handleExecute)
	mux.HandleFunc("POST "+backend.PathSummarize, s.handleSummarize)
	mux.HandleFunc("POST "+backend.PathChat, s.handleChat)
	mux.HandleFunc("POST "+backend.PathUploadImage, s.handleUpload)
	mux.HandleFunc("GET /uploads/{id}", s.handleGetUpload)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return s.auth(mux)
}

// auth checks the bearer token on the API routes.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			if r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req backend.StartRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		http.Error(w, "goal is required", http.StatusBadRequest)
		return
	}
	raw, err := s.llm.GenerateText(r.Context(), startPrompt(req))
	if err != nil {
		s.fail(w, "start", err)
		return
	}
	tasks, ok := parseTasks(raw)
	if !ok || len(tasks) == 0 {
		s.log.Warn("unusable task list, falling back to the goal", zap.String("raw", truncate(raw, 200)))
		tasks = []string{req.Goal}
	}
	runID := s.newID()
	s.log.Info("run started", zap.String("run_id", runID), zap.Int("tasks", len(tasks)))
	respondJSON(w, backend.StartResponse{RunID: runID, NewTasks: tasks})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateTasksRequest
	if !decode(w, r, &req) {
		return
	}
	raw, err := s.llm.GenerateText(r.Context(), createPrompt(req))
	if err != nil {
		s.fail(w, "create", err)
		return
	}
	tasks, ok := parseTasks(raw)
	if !ok {
		s.log.Warn("unusable follow-on list, proposing none", zap.String("raw", truncate(raw, 200)))
	}
	respondJSON(w, backend.CreateTasksResponse{RunID: req.RunID, NewTasks: orEmpty(tasks)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req backend.AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	raw, err := s.llm.GenerateText(r.Context(), analyzePrompt(req, s.tools.Names()))
	if err != nil {
		s.fail(w, "analyze", err)
		return
	}
	a, ok := parseAnalysis(raw)
	if _, known := s.tools.Get(a.Action); !ok || !known {
		a = models.Analysis{Reasoning: strings.TrimSpace(raw), Action: "reason", Arg: req.Task}
	}
	respondJSON(w, a)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req backend.ExecuteRequest
	if !decode(w, r, &req) {
		return
	}
	tool, ok := s.tools.Get(req.Analysis.Action)
	if !ok {
		tool, _ = s.tools.Get("reason")
	}
	in := tools.Input{Goal: req.Goal, Task: req.Task, Reasoning: req.Analysis.Reasoning, Arg: req.Analysis.Arg}
	s.stream(r.Context(), w, "execute", func(ctx context.Context, emit func(string) error) error {
		return tool.Run(ctx, in, emit)
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req backend.SummarizeRequest
	if !decode(w, r, &req) {
		return
	}
	s.stream(r.Context(), w, "summarize", func(ctx context.Context, emit func(string) error) error {
		return s.llm.GenerateTextStream(ctx, summarizePrompt(req), emit)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	s.stream(r.Context(), w, "chat", func(ctx context.Context, emit func(string) error) error {
		return s.llm.GenerateTextStream(ctx, chatPrompt(req), emit)
	})
}

// stream writes plain text as produce emits it, flushing after each piece.
// A failure before the first byte becomes a 502; later failures cut the
// response short.
func (s *Server) stream(ctx context.Context, w http.ResponseWriter, op string, produce func(context.Context, func(string) error) error) {
	flusher, _ := w.(http.Flusher)
	started := false
	err := produce(ctx, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	switch {
	case err == nil && !started:
		w.WriteHeader(http.StatusOK)
	case err != nil && !started:
		s.fail(w, op, err)
	case err != nil:
		s.log.Warn("stream cut short", zap.String("op", op), zap.Error(err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.log.Warn("backend call failed", zap.String("op", op), zap.Error(err))
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	http.Error(w, op+": "+err.Error(), status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
