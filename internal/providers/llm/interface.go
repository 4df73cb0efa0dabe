// Package llm holds the language-model providers the dev backend reasons with.
package llm

import (
	"context"
)

// Client is the interface every provider satisfies.
type Client interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	// GenerateTextStream calls onDelta with each piece of output as the
	// provider produces it. An error from onDelta stops the stream.
	GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error
}

// Closer is implemented by providers holding connections.
type Closer interface {
	Close() error
}
