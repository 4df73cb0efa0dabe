package tools

import (
	"context"
)

// EchoTool returns its argument unchanged.
type EchoTool struct{}

func (e *EchoTool) Name() string { return "echo" }

func (e *EchoTool) Run(_ context.Context, in Input, emit Emit) error {
	return emit(in.Arg)
}
