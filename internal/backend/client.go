// Package backend is the HTTP client for the remote reasoning service.
// Non-streamed calls decode one JSON value; streamed calls hand decoded text
// to a Sink as it arrives.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8888"

	// DevToken is sent when no credential is configured. Development only.
	DevToken = "test-token-abc123"

	DefaultRequestTimeout = 10 * time.Second
	DefaultStreamTimeout  = 5 * time.Minute
	DefaultUploadTimeout  = 30 * time.Second

	errorSnippetBytes = 4 << 10
)

var errMissingBody = errors.New("response has no body")

type Config struct {
	BaseURL string
	Token   string

	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	UploadTimeout  time.Duration

	FlushThreshold int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// deadlines come from per-call contexts
		hc = &http.Client{}
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Client{cfg: cfg, http: hc, log: lg.Named("backend")}
}

func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	var out StartResponse
	if err := c.postJSON(ctx, "start", PathStart, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	if err := c.postJSON(ctx, "analyze", PathAnalyze, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTasks(ctx context.Context, req CreateTasksRequest) (*CreateTasksResponse, error) {
	var out CreateTasksResponse
	if err := c.postJSON(ctx, "create", PathCreate, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Execute(ctx context.Context, req ExecuteRequest, sink Sink) error {
	return c.stream(ctx, "execute", PathExecute, req, sink)
}

func (c *Client) Summarize(ctx context.Context, req SummarizeRequest, sink Sink) error {
	return c.stream(ctx, "summarize", PathSummarize, req, sink)
}

func (c *Client) Chat(ctx context.Context, req ChatRequest, sink Sink) error {
	return c.stream(ctx, "chat", PathChat, req, sink)
}

// UploadImage sends data as a multipart form and returns the stored image URL.
// Data that does not sniff as an image is rejected locally.
func (c *Client) UploadImage(ctx context.Context, data []byte) (*UploadImageResponse, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "image", Reason: "empty file"}
	}
	ctype := http.DetectContentType(data)
	if !strings.HasPrefix(ctype, "image/") {
		return nil, &ValidationError{Field: "image", Reason: fmt.Sprintf("content type %s is not an image", ctype)}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, "upload"+imageExt(ctype)))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("upload: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("upload: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: build form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+PathUploadImage, &body)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out UploadImageResponse
	if err := c.do(req, "upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

// do sends req and decodes a JSON reply into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	c.authorize(req)
	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("call failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(op, res)
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{Op: op, Status: res.StatusCode, Err: err}
	}
	c.log.Debug("call done",
		zap.String("op", op),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(started)))
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if v, ok := out.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return &DecodeError{Op: op, Err: err}
		}
	}
	return nil
}

func (c *Client) stream(ctx context.Context, op, path string, body any, sink Sink) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("stream failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(op, res)
	}
	// 204 carries no stream at all; an empty 200 is an empty result
	if res.StatusCode == http.StatusNoContent || res.Body == nil {
		return &TransportError{Op: op, Status: res.StatusCode, Err: errMissingBody}
	}

	stats, err := readStream(res.Body, c.cfg.FlushThreshold, sink)
	c.log.Debug("stream done",
		zap.String("op", op),
		zap.Int("chunks", stats.Chunks),
		zap.Int("bytes", stats.Bytes),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err))
	var te *TransportError
	if errors.As(err, &te) && te.Op == "" {
		te.Op = op
		te.Status = res.StatusCode
	}
	return err
}

func (c *Client) authorize(req *http.Request) {
	token := c.cfg.Token
	if token == "" {
		token = DevToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func statusError(op string, res *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(res.Body, errorSnippetBytes))
	te := &TransportError{Op: op, Status: res.StatusCode}
	if s := strings.TrimSpace(string(snippet)); s != "" {
		te.Err = errors.New(s)
	}
	return te
}

func imageExt(ctype string) string {
	if exts, err := mime.ExtensionsByType(ctype); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func (r *StartResponse) validate() error {
	if r.RunID == "" {
		return errors.New("missing run_id")
	}
	return nil
}

func (r *UploadImageResponse) validate() error {
	if r.URL == "" {
		return errors.New("missing url")
	}
	return nil
}
