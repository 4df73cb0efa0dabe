package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient answers from the prompt text alone. It is used when no real
// provider is configured and in tests.
//
// Prompts asking for a "JSON array" get a task list, unless they carry a
// "Completed tasks:" line, in which case no follow-ons are proposed.
// Prompts asking for a "JSON object" get an analysis; a task naming a URL is
// routed to the fetch action. Everything else gets plain prose.
type MockClient struct{}

func (m *MockClient) GenerateText(_ context.Context, prompt string) (string, error) {
	p := strings.ToLower(prompt)
	goal := promptField(prompt, "Goal:")
	task := promptField(prompt, "Task:")
	switch {
	case strings.Contains(p, "json array"):
		if strings.Contains(p, "completed tasks:") {
			return "[]", nil
		}
		b, _ := json.Marshal([]string{"Research " + goal, "Write up " + goal})
		return string(b), nil
	case strings.Contains(p, "json object"):
		action, arg := "reason", task
		if u := firstURL(task); u != "" {
			action, arg = "fetch", u
		}
		b, _ := json.Marshal(map[string]string{
			"reasoning": "mock analysis of " + task,
			"action":    action,
			"arg":       arg,
		})
		return string(b), nil
	case task != "":
		return fmt.Sprintf("Completed %q for goal %q.", task, goal), nil
	case strings.Contains(p, "message:"):
		return "Mock reply: " + promptField(prompt, "Message:"), nil
	default:
		return fmt.Sprintf("Summary for goal %q.", goal), nil
	}
}

// GenerateTextStream delivers the GenerateText answer one word at a time.
func (m *MockClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	txt, err := m.GenerateText(ctx, prompt)
	if err != nil {
		return err
	}
	for _, w := range strings.SplitAfter(txt, " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onDelta(w); err != nil {
			return err
		}
	}
	return nil
}

// promptField returns the rest of the first line starting with label.
func promptField(prompt, label string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), label); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func firstURL(s string) string {
	for _, f := range strings.Fields(s) {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			return strings.TrimRight(f, ".,;)")
		}
	}
	return ""
}
