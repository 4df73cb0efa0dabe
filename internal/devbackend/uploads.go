package devbackend

import (
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/backend"
)

// handleUpload keeps the image in memory and returns a url serving it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	f, _, err := r.FormFile(backend.UploadField)
	if err != nil {
		http.Error(w, "missing "+backend.UploadField+" field", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctype := http.DetectContentType(data)
	if !strings.HasPrefix(ctype, "image/") {
		http.Error(w, "not an image: "+ctype, http.StatusUnsupportedMediaType)
		return
	}

	id := s.newID()
	s.mu.Lock()
	s.uploads[id] = upload{data: data, contentType: ctype}
	s.mu.Unlock()

	url := s.publicURL(r) + "/uploads/" + id
	s.log.Info("image stored", zap.String("id", id), zap.Int("bytes", len(data)), zap.String("type", ctype))
	respondJSON(w, backend.UploadImageResponse{URL: url})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	u, ok := s.uploads[r.PathValue("id")]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", u.contentType)
	w.Write(u.data)
}

func (s *Server) publicURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
