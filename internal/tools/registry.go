// Package tools holds the actions the dev backend can carry out for a task.
// Each action streams its output through an Emit callback as it is produced.
package tools

import (
	"context"
	"sort"
)

// Input is what an action gets to work with.
type Input struct {
	Goal      string
	Task      string
	Reasoning string
	Arg       string
}

// Emit delivers a piece of output. An error stops the action.
type Emit func(chunk string) error

type Tool interface {
	Name() string
	Run(ctx context.Context, in Input, emit Emit) error
}

type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered actions in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
