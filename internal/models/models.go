package models

// Phase is the orchestrator's position in the task loop.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseStarted     Phase = "started"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseExecuting   Phase = "executing"
	PhaseReconciling Phase = "reconciling"
)

// Looping reports whether the phase belongs to a running loop step.
func (p Phase) Looping() bool {
	return p == PhaseAnalyzing || p == PhaseExecuting || p == PhaseReconciling
}

const (
	DefaultReasoningModel = "gpt-3.5-turbo"
	DefaultVisionModel    = "gpt-4o-mini"
)

type ModelSettings struct {
	CustomModelName string `json:"customModelName"`
}

// RunModels names the backend models used for one run.
type RunModels struct {
	Reasoning string `json:"reasoning"`
	Vision    string `json:"vision"`
}

func DefaultRunModels() RunModels {
	return RunModels{Reasoning: DefaultReasoningModel, Vision: DefaultVisionModel}
}

func (m RunModels) ReasoningSettings() ModelSettings {
	return ModelSettings{CustomModelName: m.Reasoning}
}

func (m RunModels) VisionSettings() ModelSettings {
	return ModelSettings{CustomModelName: m.Vision}
}

// Analysis is the backend's proposed action for a task.
type Analysis struct {
	Reasoning string `json:"reasoning"`
	Action    string `json:"action"`
	Arg       string `json:"arg"`
}

// Run is the progress record of one goal.
// Tasks is every task ever proposed; Pending and Completed partition the ones
// that are not in flight.
type Run struct {
	ID         string    `json:"run_id"`
	Goal       string    `json:"goal"`
	Models     RunModels `json:"models"`
	ImageURL   string    `json:"image_url,omitempty"`
	Tasks      []string  `json:"tasks"`
	Pending    []string  `json:"pending"`
	Completed  []string  `json:"completed"`
	LastTask   string    `json:"last_task"`
	LastResult string    `json:"last_result"`
	Results    []string  `json:"results"`
}

// Clone returns a deep copy.
func (r Run) Clone() Run {
	out := r
	out.Tasks = cloneStrings(r.Tasks)
	out.Pending = cloneStrings(r.Pending)
	out.Completed = cloneStrings(r.Completed)
	out.Results = cloneStrings(r.Results)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
