package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/goalrunner/internal/providers/llm"
)

const (
	DefaultFetchMaxBytes = 2 << 20
	fetchLinkLimit       = 10
)

// FetchTool downloads the page named by the argument and streams a digest
// of it, followed by the page's first links.
type FetchTool struct {
	Client     llm.Client
	HTTPClient *http.Client
	MaxBytes   int64
}

func (f *FetchTool) Name() string { return "fetch" }

func (f *FetchTool) Run(ctx context.Context, in Input, emit Emit) error {
	target := strings.TrimSpace(in.Arg)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("fetch: %q is not an http url", target)
	}
	body, ctype, err := f.get(ctx, u.String())
	if err != nil {
		return err
	}

	text := body
	var links []Link
	if strings.Contains(ctype, "html") {
		if text, err = HTMLToText(body); err != nil {
			return fmt.Errorf("fetch: parse %s: %w", u, err)
		}
		links, _ = ExtractLinks(body, u, fetchLinkLimit)
	}
	if strings.TrimSpace(text) == "" {
		return emit(fmt.Sprintf("%s returned no readable text.", u))
	}
	if err := summarizeText(ctx, f.Client, in, text, emit); err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("\n\nLinks:\n")
	for _, l := range links {
		if l.Text != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", l.Text, l.Href)
		} else {
			fmt.Fprintf(&b, "- %s\n", l.Href)
		}
	}
	return emit(b.String())
}

func (f *FetchTool) get(ctx context.Context, target string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", err
	}
	client := f.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	max := f.MaxBytes
	if max <= 0 {
		max = DefaultFetchMaxBytes
	}
	// limit body to avoid huge transfers
	b, err := io.ReadAll(io.LimitReader(resp.Body, max))
	if err != nil {
		return "", "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(b), resp.Header.Get("Content-Type"), nil
}

// Default registers every action backed by client.
func Default(client llm.Client, httpClient *http.Client) *Registry {
	r := NewRegistry()
	r.Register(&ReasonTool{Client: client})
	r.Register(&SummarizeTool{Client: client})
	r.Register(&FetchTool{Client: client, HTTPClient: httpClient})
	r.Register(&EchoTool{})
	return r
}
