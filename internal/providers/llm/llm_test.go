package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockPlansAndAnalyses(t *testing.T) {
	m := &MockClient{}

	out, err := m.GenerateText(t.Context(), "Respond with a JSON array of tasks.\nGoal: Plan a launch")
	require.NoError(t, err)
	var tasks []string
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	assert.Equal(t, []string{"Research Plan a launch", "Write up Plan a launch"}, tasks)

	out, err = m.GenerateText(t.Context(), "Respond with a JSON array.\nGoal: g\nCompleted tasks: a")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	out, err = m.GenerateText(t.Context(), "Respond with a JSON object.\nGoal: g\nTask: read https://example.com/page.")
	require.NoError(t, err)
	var a struct{ Action, Arg string }
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, "fetch", a.Action)
	assert.Equal(t, "https://example.com/page", a.Arg)
}

func TestMockStreamConcatenatesToText(t *testing.T) {
	m := &MockClient{}
	prompt := "Goal: g\nTask: write it"
	want, err := m.GenerateText(t.Context(), prompt)
	require.NoError(t, err)

	var chunks []string
	require.NoError(t, m.GenerateTextStream(t.Context(), prompt, func(c string) error {
		chunks = append(chunks, c)
		return nil
	}))
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, want, strings.Join(chunks, ""))
}

func TestOpenAIStreamParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range []string{"Mon: ", "kickoff"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", s)
		}
		io.WriteString(w, ": keep-alive\n\ndata: not json\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTPClient: srv.Client()}
	var got []string
	require.NoError(t, c.GenerateTextStream(t.Context(), "p", func(s string) error {
		got = append(got, s)
		return nil
	}))
	assert.Equal(t, []string{"Mon: ", "kickoff"}, got)
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.GenerateText(t.Context(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}]}`)
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTPClient: srv.Client()}
	out, err := c.GenerateText(t.Context(), "p")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicStreamDeliversTextDeltas(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":0}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Sum"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"mary text"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}))
	defer srv.Close()

	c, err := NewAnthropic("k", "m", srv.URL)
	require.NoError(t, err)
	var got []string
	require.NoError(t, c.GenerateTextStream(t.Context(), "p", func(s string) error {
		got = append(got, s)
		return nil
	}))
	assert.Equal(t, []string{"Sum", "mary text"}, got)
}

func TestFactorySelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want any
	}{
		{"nothing configured", Config{}, &MockClient{}},
		{"explicit mock", Config{Provider: "mock", OpenAIKey: "k"}, &MockClient{}},
		{"openai by key", Config{OpenAIKey: "k"}, &OpenAIClient{}},
		{"named provider without key detects", Config{Provider: "gemini", OpenAIKey: "k"}, &OpenAIClient{}},
		{"anthropic", Config{Provider: "anthropic", AnthropicKey: "k"}, &AnthropicClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(t.Context(), tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestFactoryOpenAIDefaults(t *testing.T) {
	c, err := New(t.Context(), Config{OpenAIKey: "k"})
	require.NoError(t, err)
	oc := c.(*OpenAIClient)
	assert.Equal(t, "gpt-4o-mini", oc.Model)
	assert.Equal(t, DefaultTimeout, oc.HTTPClient.Timeout)
	assert.Equal(t, defaultOpenAIBase+"/v1/chat/completions", oc.endpoint("/v1/chat/completions"))
}
