package tools

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/goalrunner/internal/providers/llm"
)

func collect(out *strings.Builder) Emit {
	return func(chunk string) error {
		out.WriteString(chunk)
		return nil
	}
}

func TestHTMLToTextSkipsHiddenElements(t *testing.T) {
	doc := `<html><head><style>p{}</style><script>var x=1</script></head>
<body><h1>Launch   plan</h1><p>Mon:	kickoff</p><p></p><ul><li>Fri: review</li></ul></body></html>`
	got, err := HTMLToText(doc)
	require.NoError(t, err)
	assert.Equal(t, "Launch plan\nMon: kickoff\nFri: review", got)
}

func TestExtractLinksResolvesAndDedups(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs/")
	doc := `<a href="intro">Intro <b>page</b></a><a href="#top">top</a>
<a href="https://other.org/">Other</a><a href="intro">again</a><a href="javascript:void(0)">x</a>`
	links, err := ExtractLinks(doc, base, 10)
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{Href: "https://example.com/docs/intro", Text: "Intro page"},
		{Href: "https://other.org/", Text: "Other"},
	}, links)

	links, err = ExtractLinks(doc, base, 1)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestFetchStreamsDigestAndLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<p>Venue options</p><a href="/halls">Halls</a>`)
	}))
	defer srv.Close()

	f := &FetchTool{Client: &llm.MockClient{}, HTTPClient: srv.Client()}
	var out strings.Builder
	require.NoError(t, f.Run(t.Context(), Input{Goal: "g", Task: "Book venue", Arg: srv.URL}, collect(&out)))

	assert.Contains(t, out.String(), `Completed "Book venue"`)
	assert.Contains(t, out.String(), "- Halls ("+srv.URL+"/halls)")
}

func TestFetchRejectsBadTargets(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := &FetchTool{Client: &llm.MockClient{}, HTTPClient: srv.Client()}
	var out strings.Builder
	assert.ErrorContains(t, f.Run(t.Context(), Input{Arg: "ftp://x"}, collect(&out)), "not an http url")
	assert.ErrorContains(t, f.Run(t.Context(), Input{Arg: srv.URL}, collect(&out)), "status 404")
	assert.Empty(t, out.String())
}

func TestDefaultRegistry(t *testing.T) {
	r := Default(&llm.MockClient{}, nil)
	assert.Equal(t, []string{"echo", "fetch", "reason", "summarize"}, r.Names())

	tool, ok := r.Get("echo")
	require.True(t, ok)
	var out strings.Builder
	require.NoError(t, tool.Run(t.Context(), Input{Arg: "same"}, collect(&out)))
	assert.Equal(t, "same", out.String())

	_, ok = r.Get("http_post_json")
	assert.False(t, ok)
}

func TestReasonStreamsModelOutput(t *testing.T) {
	tool := &ReasonTool{Client: &llm.MockClient{}}
	var out strings.Builder
	require.NoError(t, tool.Run(t.Context(), Input{Goal: "Plan a launch", Task: "Draft timeline"}, collect(&out)))
	assert.Equal(t, `Completed "Draft timeline" for goal "Plan a launch".`, out.String())

	assert.Error(t, tool.Run(t.Context(), Input{}, collect(&out)))
}
