package devbackend

import (
	"encoding/json"
	"strings"

	"github.com/example/goalrunner/internal/models"
)

// parseTasks reads a task list out of model output. It accepts a bare array,
// an array inside prose or code fences, or a {"tasks": [...]} wrapper.
func parseTasks(raw string) ([]string, bool) {
	text := stripFences(raw)
	var tasks []string
	if err := json.Unmarshal([]byte(text), &tasks); err == nil {
		return cleanTasks(tasks), true
	}
	var wrapper struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err == nil && wrapper.Tasks != nil {
		return cleanTasks(wrapper.Tasks), true
	}
	if arr := extractJSON(text, '[', ']'); arr != "" {
		if err := json.Unmarshal([]byte(arr), &tasks); err == nil {
			return cleanTasks(tasks), true
		}
	}
	return nil, false
}

func cleanTasks(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
		if len(out) == maxTasksPerCall {
			break
		}
	}
	return out
}

// parseAnalysis reads an analysis object out of model output.
func parseAnalysis(raw string) (models.Analysis, bool) {
	text := stripFences(raw)
	var a models.Analysis
	if err := json.Unmarshal([]byte(text), &a); err == nil && a.Action != "" {
		return a, true
	}
	if obj := extractJSON(text, '{', '}'); obj != "" {
		if err := json.Unmarshal([]byte(obj), &a); err == nil && a.Action != "" {
			return a, true
		}
	}
	return models.Analysis{}, false
}

func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// drop a language hint such as json
	if idx := strings.IndexByte(t, '\n'); idx != -1 {
		t = t[idx+1:]
	}
	if j := strings.LastIndex(t, "```"); j != -1 {
		t = t[:j]
	}
	return strings.TrimSpace(t)
}

// extractJSON returns the first balanced open...close span of s, skipping
// brackets inside string literals.
func extractJSON(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
