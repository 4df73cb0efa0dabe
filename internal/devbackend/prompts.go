package devbackend

import (
	"fmt"
	"strings"

	"github.com/example/goalrunner/internal/backend"
)

// maxTasksPerCall caps how many tasks one start or create call may propose.
const maxTasksPerCall = 5

func startPrompt(req backend.StartRequest) string {
	var b strings.Builder
	b.WriteString("You are a planning agent. Break the goal below into a short list of concrete tasks.\n")
	fmt.Fprintf(&b, "Respond with a JSON array of at most %d task strings, no prose, no code fences.\n\n", maxTasksPerCall)
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	if req.ImageURL != "" {
		fmt.Fprintf(&b, "Image: %s\n", req.ImageURL)
	}
	return b.String()
}

func createPrompt(req backend.CreateTasksRequest) string {
	var b strings.Builder
	b.WriteString("You are a planning agent reviewing progress towards a goal.\n")
	b.WriteString("Propose follow-on tasks only if the goal is not yet met; never repeat a known task.\n")
	fmt.Fprintf(&b, "Respond with a JSON array of at most %d task strings (possibly empty), no prose.\n\n", maxTasksPerCall)
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	fmt.Fprintf(&b, "Known tasks: %s\n", strings.Join(req.Tasks, "; "))
	fmt.Fprintf(&b, "Completed tasks: %s\n", strings.Join(req.CompletedTasks, "; "))
	fmt.Fprintf(&b, "Last task: %s\n", req.LastTask)
	fmt.Fprintf(&b, "Last result:\n%s\n", req.LastResult)
	return b.String()
}

func analyzePrompt(req backend.AnalyzeRequest, actions []string) string {
	var b strings.Builder
	b.WriteString("Decide how to carry out the task below.\n")
	fmt.Fprintf(&b, "Available actions: %s.\n", strings.Join(actions, ", "))
	b.WriteString("Use fetch with a URL as arg when the task needs a web page, reason otherwise.\n")
	b.WriteString(`Respond with a JSON object {"reasoning": string, "action": string, "arg": string}, no prose.` + "\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	fmt.Fprintf(&b, "Task: %s\n", req.Task)
	return b.String()
}

func summarizePrompt(req backend.SummarizeRequest) string {
	var b strings.Builder
	b.WriteString("Write a concise report of what was achieved for the goal, based on the results below.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	writeResults(&b, req.Results)
	return b.String()
}

func chatPrompt(req backend.ChatRequest) string {
	var b strings.Builder
	b.WriteString("Answer the user's message using the results gathered so far for the goal.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	writeResults(&b, req.Results)
	fmt.Fprintf(&b, "\nMessage: %s\n", req.Message)
	return b.String()
}

func writeResults(b *strings.Builder, results []string) {
	b.WriteString("Results:\n")
	for i, r := range results {
		fmt.Fprintf(b, "%d. %s\n", i+1, strings.ReplaceAll(r, "\n", "\n   "))
	}
}
