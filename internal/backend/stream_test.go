package backend

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader returns one scripted slice per Read, then err (io.EOF if nil).
type scriptedReader struct {
	reads [][]byte
	err   error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.reads) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.reads[0])
	if n < len(r.reads[0]) {
		r.reads[0] = r.reads[0][n:]
	} else {
		r.reads = r.reads[1:]
	}
	return n, nil
}

func collect(chunks *[]string) Sink {
	return func(c string) error {
		*chunks = append(*chunks, c)
		return nil
	}
}

func TestReadStreamBatchesByThreshold(t *testing.T) {
	r := &scriptedReader{reads: [][]byte{[]byte("ab"), []byte("cdefg"), []byte("h")}}
	var chunks []string
	stats, err := readStream(r, 5, collect(&chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"abcdefg", "h"}, chunks)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 8, stats.Bytes)
}

func TestReadStreamFlushesRemainderOnce(t *testing.T) {
	r := &scriptedReader{reads: [][]byte{[]byte("Mon: "), []byte("kickoff\n")}}
	var chunks []string
	_, err := readStream(r, 50, collect(&chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mon: kickoff\n"}, chunks)
}

func TestReadStreamEmptyBodyDeliversNothing(t *testing.T) {
	var chunks []string
	_, err := readStream(strings.NewReader(""), 50, collect(&chunks))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestReadStreamKeepsSplitCharactersWhole(t *testing.T) {
	text := "héllo 世界, naïve ✓"
	raw := []byte(text)
	// split every character's bytes across reads
	var reads [][]byte
	for _, b := range raw {
		reads = append(reads, []byte{b})
	}
	var chunks []string
	_, err := readStream(&scriptedReader{reads: reads}, 1, collect(&chunks))
	require.NoError(t, err)

	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.NotContains(t, c, "�", "chunk %q split a character", c)
	}
}

func TestReadStreamSplitAtThresholdBoundary(t *testing.T) {
	// "世" is three bytes; the second read ends inside it
	r := &scriptedReader{reads: [][]byte{[]byte("abcd"), {0xe4, 0xb8}, {0x96, 'z'}}}
	var chunks []string
	_, err := readStream(r, 4, collect(&chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "世z"}, chunks)
}

func TestReadStreamTruncatedCharacterAtEOF(t *testing.T) {
	r := &scriptedReader{reads: [][]byte{[]byte("ok"), {0xe4, 0xb8}}}
	var chunks []string
	_, err := readStream(r, 50, collect(&chunks))
	require.NoError(t, err)
	got := strings.Join(chunks, "")
	assert.True(t, strings.HasPrefix(got, "ok"))
	assert.Contains(t, got, "�")
	assert.Len(t, chunks, 1)
}

func TestReadStreamReadErrorFlushesDecodedText(t *testing.T) {
	boom := errors.New("connection reset")
	r := &scriptedReader{reads: [][]byte{[]byte("partial")}, err: boom}
	var chunks []string
	_, err := readStream(r, 50, collect(&chunks))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"partial"}, chunks)
}

func TestReadStreamSinkErrorStops(t *testing.T) {
	stop := errors.New("stop")
	r := &scriptedReader{reads: [][]byte{[]byte("aaaa"), []byte("bbbb")}}
	calls := 0
	_, err := readStream(r, 2, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("abc"), 3},
		{"complete multibyte", []byte("a世"), 4},
		{"one byte of three", []byte{'a', 0xe4}, 1},
		{"two bytes of three", []byte{'a', 0xe4, 0xb8}, 1},
		{"two bytes of four", []byte{0xf0, 0x9f}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runeBoundary(tt.in))
		})
	}
}
