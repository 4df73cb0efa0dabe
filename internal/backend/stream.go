package backend

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// DefaultFlushThreshold is the number of decoded characters buffered before a
// chunk is handed to the sink.
const DefaultFlushThreshold = 50

// Sink receives streamed text in arrival order. Returning an error aborts the stream.
type Sink func(chunk string) error

type streamStats struct {
	Chunks int
	Bytes  int
}

// readStream decodes r as UTF-8 and batches decoded text into sink calls of at
// least threshold characters. Bytes of a character split across reads are held
// back until the character is complete. Whatever is left when the stream ends
// is flushed once. Read failures come back as *TransportError without Op.
func readStream(r io.Reader, threshold int, sink Sink) (streamStats, error) {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	var (
		stats   streamStats
		pending []byte
		buf     = make([]byte, 4096)
		dec     = unicode.UTF8.NewDecoder().Reader(r)
	)
	emit := func(n int) error {
		if n == 0 {
			return nil
		}
		chunk := string(pending[:n])
		pending = append(pending[:0], pending[n:]...)
		stats.Chunks++
		return sink(chunk)
	}
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			stats.Bytes += n
			pending = append(pending, buf[:n]...)
			if end := runeBoundary(pending); utf8.RuneCount(pending[:end]) >= threshold {
				if serr := emit(end); serr != nil {
					return stats, serr
				}
			}
		}
		if err == io.EOF {
			return stats, emit(len(pending))
		}
		if err != nil {
			if serr := emit(runeBoundary(pending)); serr != nil {
				return stats, serr
			}
			return stats, &TransportError{Err: err}
		}
	}
}

// runeBoundary returns the length of the longest prefix of b that does not end
// inside a multi-byte character.
func runeBoundary(b []byte) int {
	// a character starts at most UTFMax-1 bytes before the end
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
