package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/goalrunner/internal/providers/llm"
)

// ReasonTool answers the task with the language model alone.
type ReasonTool struct{ Client llm.Client }

func (t *ReasonTool) Name() string { return "reason" }

func (t *ReasonTool) Run(ctx context.Context, in Input, emit Emit) error {
	if strings.TrimSpace(in.Task) == "" {
		return fmt.Errorf("reason: missing task")
	}
	return t.Client.GenerateTextStream(ctx, reasonPrompt(in), emit)
}

func reasonPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are working towards an overall goal, one task at a time.\n")
	b.WriteString("Carry out the task below and reply with the result only, no preamble.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	fmt.Fprintf(&b, "Task: %s\n", in.Task)
	if in.Reasoning != "" {
		fmt.Fprintf(&b, "Approach: %s\n", in.Reasoning)
	}
	if in.Arg != "" && in.Arg != in.Task {
		fmt.Fprintf(&b, "Focus: %s\n", in.Arg)
	}
	return b.String()
}
