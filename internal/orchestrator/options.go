package orchestrator

import (
	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/runstate"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithState uses an existing state instead of a fresh one.
func WithState(s *runstate.State) Option {
	return func(o *Orchestrator) { o.state = s }
}

// WithPacer sets the delay policy between task-added messages.
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithModels sets the reasoning and vision model names sent with new runs.
func WithModels(m models.RunModels) Option {
	return func(o *Orchestrator) { o.models = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}
