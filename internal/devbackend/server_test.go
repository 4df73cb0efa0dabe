package devbackend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/orchestrator"
	"github.com/example/goalrunner/internal/providers/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// stubLLM returns fixed text, or fails.
type stubLLM struct {
	text string
	err  error
}

func (s stubLLM) GenerateText(context.Context, string) (string, error) { return s.text, s.err }

func (s stubLLM) GenerateTextStream(_ context.Context, _ string, onDelta func(string) error) error {
	if s.err != nil {
		return s.err
	}
	return onDelta(s.text)
}

func newServer(t *testing.T, client llm.Client, cfg Config) (*Server, *backend.Client) {
	t.Helper()
	s := New(client, cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, backend.New(backend.Config{BaseURL: srv.URL, Token: cfg.Token, HTTPClient: srv.Client()})
}

func TestRunAgainstMockProvider(t *testing.T) {
	_, bc := newServer(t, &llm.MockClient{}, Config{Token: "secret"})
	o := orchestrator.New(bc)

	require.NoError(t, o.Start(t.Context(), "Plan a launch"))

	run := o.Snapshot().Run
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, []string{"Research Plan a launch", "Write up Plan a launch"}, run.Completed)
	assert.Equal(t, []string{
		`Completed "Research Plan a launch" for goal "Plan a launch".`,
		`Completed "Write up Plan a launch" for goal "Plan a launch".`,
	}, run.Results)
	assert.Empty(t, run.Pending)

	require.NoError(t, o.Summarize(t.Context()))
	require.NoError(t, o.Chat(t.Context(), "when?"))

	msgs := o.Snapshot().Messages
	assert.Equal(t, `Summary for goal "Plan a launch".`, msgs[len(msgs)-2].Detail)
	assert.Equal(t, "Mock reply: when?", msgs[len(msgs)-1].Detail)
}

func TestRejectsWrongToken(t *testing.T) {
	s := New(&llm.MockClient{}, Config{Token: "secret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	bc := backend.New(backend.Config{BaseURL: srv.URL, HTTPClient: srv.Client()})

	_, err := bc.Start(t.Context(), backend.StartRequest{Goal: "g"})
	var te *backend.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
}

func TestAnalyzeFallsBackToReason(t *testing.T) {
	_, bc := newServer(t, stubLLM{text: "I would just think about it."}, Config{})

	a, err := bc.Analyze(t.Context(), backend.AnalyzeRequest{Goal: "g", Task: "Book venue"})
	require.NoError(t, err)
	assert.Equal(t, models.Analysis{Reasoning: "I would just think about it.", Action: "reason", Arg: "Book venue"}, *a)
}

func TestAnalyzeRejectsUnknownAction(t *testing.T) {
	_, bc := newServer(t, stubLLM{text: `{"reasoning":"r","action":"shell","arg":"rm -rf /"}`}, Config{})

	a, err := bc.Analyze(t.Context(), backend.AnalyzeRequest{Task: "t"})
	require.NoError(t, err)
	assert.Equal(t, "reason", a.Action)
	assert.Equal(t, "t", a.Arg)
}

func TestStartFallsBackToGoal(t *testing.T) {
	_, bc := newServer(t, stubLLM{text: "no idea"}, Config{})

	res, err := bc.Start(t.Context(), backend.StartRequest{Goal: "Plan a launch"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Plan a launch"}, res.NewTasks)
}

func TestCreateAlwaysReturnsList(t *testing.T) {
	_, bc := newServer(t, stubLLM{text: "nothing more"}, Config{})

	res, err := bc.CreateTasks(t.Context(), backend.CreateTasksRequest{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RunID)
	assert.NotNil(t, res.NewTasks)
	assert.Empty(t, res.NewTasks)
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	_, bc := newServer(t, stubLLM{err: errors.New("quota")}, Config{})

	err := bc.Summarize(t.Context(), backend.SummarizeRequest{Results: []string{"r"}}, func(string) error { return nil })
	var te *backend.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.Status)
	assert.Contains(t, te.Error(), "quota")
}

func TestUploadIsServedBack(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	_, bc := newServer(t, &llm.MockClient{}, Config{})

	res, err := bc.UploadImage(t.Context(), png)
	require.NoError(t, err)
	assert.Contains(t, res.URL, "/uploads/")

	resp, err := http.Get(res.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestParseTasks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
		ok   bool
	}{
		{"bare", `["a","b"]`, []string{"a", "b"}, true},
		{"fenced", "```json\n[\"a\"]\n```", []string{"a"}, true},
		{"prose", `Sure! Here you go: ["a [draft]", " b "] Hope it helps.`, []string{"a [draft]", "b"}, true},
		{"wrapper", `{"tasks":["a"]}`, []string{"a"}, true},
		{"empty", `[]`, []string{}, true},
		{"capped", `["1","2","3","4","5","6"]`, []string{"1", "2", "3", "4", "5"}, true},
		{"garbage", `no tasks`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTasks(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	a, ok := parseAnalysis("Plan:\n```\n{\"reasoning\":\"needs {dates}\",\"action\":\"reason\",\"arg\":\"x\"}\n```")
	require.True(t, ok)
	assert.Equal(t, models.Analysis{Reasoning: "needs {dates}", Action: "reason", Arg: "x"}, a)

	_, ok = parseAnalysis(`{"reasoning":"no action"}`)
	assert.False(t, ok)
}

func TestTruncateKeepsCharactersWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"añb", 2, "a..."},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got), tt.in)
	}
}
