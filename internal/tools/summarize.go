package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/goalrunner/internal/providers/llm"
)

// maxSummaryInput bounds the text handed to the model.
const maxSummaryInput = 24 << 10

// SummarizeTool condenses the text given as the argument.
type SummarizeTool struct{ Client llm.Client }

func (s *SummarizeTool) Name() string { return "summarize" }

func (s *SummarizeTool) Run(ctx context.Context, in Input, emit Emit) error {
	if strings.TrimSpace(in.Arg) == "" {
		return fmt.Errorf("summarize: missing text")
	}
	return summarizeText(ctx, s.Client, in, in.Arg, emit)
}

func summarizeText(ctx context.Context, client llm.Client, in Input, text string, emit Emit) error {
	if len(text) > maxSummaryInput {
		text = text[:maxSummaryInput]
	}
	prompt := fmt.Sprintf("Summarize the following text in a concise way (3-5 bullet points or a short paragraph). Focus on key facts relevant to the task.\n\nGoal: %s\nTask: %s\n\nText:\n%s",
		in.Goal, in.Task, text)
	return client.GenerateTextStream(ctx, prompt, emit)
}
