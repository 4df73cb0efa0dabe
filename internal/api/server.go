// Package api exposes the orchestrator to a browser front end over HTTP and
// Server-Sent Events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/orchestrator"
)

const maxImageBytes = 10 << 20

type Server struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger

	// ctx bounds background submissions; it outlives single requests.
	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	lastErr string

	// subscribed runs between subscribing to the feed and taking the
	// snapshot in handleEvents. Tests only.
	subscribed func()
}

// New returns a server whose background work stops when ctx is done.
func New(ctx context.Context, orch *orchestrator.Orchestrator, lg *zap.Logger) *Server {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Server{orch: orch, log: lg.Named("api"), ctx: ctx}
}

// Wait blocks until background submissions have finished.
func (s *Server) Wait() { s.wg.Wait() }

type stateResponse struct {
	Run              models.Run       `json:"run"`
	Messages         []models.Message `json:"messages"`
	Phase            models.Phase     `json:"phase"`
	ReadyToSummarize bool             `json:"ready_to_summarize"`
	LastError        string           `json:"last_error,omitempty"`
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap := s.orch.Snapshot()
		s.mu.Lock()
		lastErr := s.lastErr
		s.mu.Unlock()
		respondJSON(w, stateResponse{
			Run:              snap.Run,
			Messages:         snap.Messages,
			Phase:            s.orch.Phase(),
			ReadyToSummarize: s.orch.ReadyToSummarize(),
			LastError:        lastErr,
		})
	})

	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			s.respondError(w, &backend.ValidationError{Field: "text", Reason: "empty"})
			return
		}
		// a new goal cannot start while one is being processed
		if s.orch.State().Goal() == "" && s.orch.Phase() != models.PhaseIdle {
			s.respondError(w, orchestrator.ErrBusy)
			return
		}
		s.background("submit", func(ctx context.Context) error {
			return s.orch.SubmitGoalOrChatText(ctx, req.Text)
		})
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if len(s.orch.Snapshot().Run.Results) == 0 {
			s.respondError(w, &backend.ValidationError{Field: "results", Reason: "nothing to summarize yet"})
			return
		}
		s.background("summary", s.orch.RequestSummary)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
		f, _, err := r.FormFile(backend.UploadField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		url, err := s.orch.UploadImage(r.Context(), data)
		if err != nil {
			s.respondError(w, err)
			return
		}
		respondJSON(w, map[string]string{"url": url})
	})

	mux.HandleFunc("/events", s.handleEvents)
}

// handleEvents streams run state changes as Server-Sent Events, starting
// with a full snapshot. Every event after it has a seq greater than the
// snapshot's.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	events, unsubscribe := s.orch.State().Subscribe()
	defer unsubscribe()
	if s.subscribed != nil {
		s.subscribed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Events published between Subscribe and Snapshot are already in the
	// snapshot; they are dropped here so no chunk is applied twice.
	snap := s.orch.Snapshot()
	if err := writeEvent(w, "snapshot", snap); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq <= snap.Seq {
				continue
			}
			if err := writeEvent(w, string(ev.Kind), ev); err != nil {
				s.log.Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}

func (s *Server) background(op string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn(s.ctx)
		s.mu.Lock()
		if err != nil {
			s.lastErr = err.Error()
		} else {
			s.lastErr = ""
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		}
	}()
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		ve *backend.ValidationError
		te *backend.TransportError
		de *backend.DecodeError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &te), errors.As(err, &de):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// CORS allows a browser front end on another origin during local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
