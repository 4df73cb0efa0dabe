// Package orchestrator drives one goal through the backend: it turns the goal
// into tasks, runs them one at a time, folds every result back into the run,
// and streams summaries and chat replies into the message log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/runstate"
)

// ErrBusy is returned when a goal is already being processed.
var ErrBusy = errors.New("orchestrator: a goal is already being processed")

// Backend is the reasoning service as seen by the orchestrator.
type Backend interface {
	Start(ctx context.Context, req backend.StartRequest) (*backend.StartResponse, error)
	Analyze(ctx context.Context, req backend.AnalyzeRequest) (*backend.AnalyzeResponse, error)
	Execute(ctx context.Context, req backend.ExecuteRequest, sink backend.Sink) error
	CreateTasks(ctx context.Context, req backend.CreateTasksRequest) (*backend.CreateTasksResponse, error)
	Summarize(ctx context.Context, req backend.SummarizeRequest, sink backend.Sink) error
	Chat(ctx context.Context, req backend.ChatRequest, sink backend.Sink) error
	UploadImage(ctx context.Context, data []byte) (*backend.UploadImageResponse, error)
}

type Orchestrator struct {
	backend Backend
	state   *runstate.State
	pacer   Pacer
	models  models.RunModels
	log     *zap.Logger

	// loopMu is held for the whole of Start, Step and Loop.
	loopMu sync.Mutex
	// followOnDue marks a completed task whose follow-on tasks were never
	// fetched. Guarded by loopMu.
	followOnDue bool

	// streamMu keeps at most one stream open.
	streamMu sync.Mutex

	phaseMu sync.RWMutex
	phase   models.Phase

	submitted atomic.Bool
	inFlight  atomic.Int32
}

func New(b Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: b,
		pacer:   NoPacing(),
		models:  models.DefaultRunModels(),
		log:     zap.NewNop(),
		phase:   models.PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.state == nil {
		o.state = runstate.New()
	}
	return o
}

// State exposes the run state for reading.
func (o *Orchestrator) State() *runstate.State { return o.state }

func (o *Orchestrator) Snapshot() runstate.Snapshot { return o.state.Snapshot() }

func (o *Orchestrator) Phase() models.Phase {
	o.phaseMu.RLock()
	defer o.phaseMu.RUnlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p models.Phase) {
	o.phaseMu.Lock()
	o.phase = p
	o.phaseMu.Unlock()
}

// Start begins a new run for goal and processes tasks until none are pending.
// When the backend rejects the start, the previous run is left as it was.
func (o *Orchestrator) Start(ctx context.Context, goal string) error {
	if strings.TrimSpace(goal) == "" {
		return &backend.ValidationError{Field: "goal", Reason: "empty"}
	}
	if !o.loopMu.TryLock() {
		return ErrBusy
	}
	defer o.loopMu.Unlock()
	defer o.setPhase(models.PhaseIdle)

	o.state.Append(models.Message{Text: goal, Type: models.MessageUserInput, Role: models.RoleUser})
	o.setPhase(models.PhaseStarted)
	o.state.Append(models.Message{Text: goal, Type: models.MessageStartingTask, Role: models.RoleAssistant})

	prev := o.state.Run()
	res, err := o.backend.Start(ctx, backend.StartRequest{
		Goal:                goal,
		ModelSettings:       o.models.ReasoningSettings(),
		VisionModelSettings: o.models.VisionSettings(),
		ImageURL:            prev.ImageURL,
	})
	if err != nil {
		o.log.Warn("start failed", zap.Error(err))
		return fmt.Errorf("start: %w", err)
	}

	o.state.Replace(models.Run{
		ID:       res.RunID,
		Goal:     goal,
		Models:   o.models,
		ImageURL: prev.ImageURL,
	})
	o.followOnDue = false
	o.log.Info("run started", zap.String("run_id", res.RunID), zap.Int("tasks", len(res.NewTasks)))

	if err := o.addTasks(ctx, res.NewTasks); err != nil {
		return err
	}
	return o.loop(ctx)
}

// Loop processes pending tasks until the queue is empty. It resumes a run
// after a failed step, starting again from the task that failed.
func (o *Orchestrator) Loop(ctx context.Context) error {
	if !o.loopMu.TryLock() {
		return ErrBusy
	}
	defer o.loopMu.Unlock()
	defer o.setPhase(models.PhaseIdle)
	return o.loop(ctx)
}

// Step runs the task at the head of the queue and reports whether tasks
// remain pending afterwards.
func (o *Orchestrator) Step(ctx context.Context) (bool, error) {
	if !o.loopMu.TryLock() {
		return false, ErrBusy
	}
	defer o.loopMu.Unlock()
	defer o.setPhase(models.PhaseIdle)
	return o.step(ctx)
}

func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		more, err := o.step(ctx)
		if err != nil {
			return err
		}
		if !more {
			o.log.Info("run drained", zap.Int("completed", len(o.state.Run().Completed)))
			return nil
		}
	}
}

func (o *Orchestrator) step(ctx context.Context) (bool, error) {
	if o.followOnDue {
		if err := o.reconcile(ctx); err != nil {
			return false, err
		}
	}
	task, ok := o.state.Head()
	if !ok {
		return false, nil
	}
	o.log.Debug("task started", zap.String("task", task))

	analysis, err := o.Analyze(ctx, task)
	if err != nil {
		return false, err
	}
	result, err := o.Execute(ctx, task, analysis)
	if err != nil {
		return false, err
	}
	// The task is done once its output is recorded. A failed follow-on request
	// below leaves it completed, with last task and result pointing at it, and
	// the next step asks again before taking another task.
	if err := o.state.Complete(task, result); err != nil {
		return false, err
	}
	o.followOnDue = true
	o.log.Debug("task completed", zap.String("task", task), zap.Int("result_bytes", len(result)))

	if err := o.reconcile(ctx); err != nil {
		return false, err
	}
	_, more := o.state.Head()
	return more, nil
}

// reconcile asks the backend for follow-on tasks given everything done so far.
func (o *Orchestrator) reconcile(ctx context.Context) error {
	o.setPhase(models.PhaseReconciling)
	run := o.state.Run()
	res, err := o.backend.CreateTasks(ctx, backend.CreateTasksRequest{
		Goal:                run.Goal,
		ModelSettings:       run.Models.ReasoningSettings(),
		VisionModelSettings: run.Models.VisionSettings(),
		ImageURL:            run.ImageURL,
		RunID:               run.ID,
		Tasks:               orEmpty(run.Tasks),
		LastTask:            run.LastTask,
		LastResult:          run.LastResult,
		CompletedTasks:      orEmpty(run.Completed),
	})
	if err != nil {
		o.log.Warn("follow-on tasks failed", zap.String("last_task", run.LastTask), zap.Error(err))
		return fmt.Errorf("create follow-on tasks: %w", err)
	}
	o.followOnDue = false
	return o.addTasks(ctx, res.NewTasks)
}

// addTasks enqueues tasks and logs a task-added message for each new one.
// Once the tasks are in the run every message is appended, even if pacing
// fails; the pacing error is returned afterwards.
func (o *Orchestrator) addTasks(ctx context.Context, tasks []string) error {
	added := o.state.AddTasks(tasks)
	if n := len(tasks) - len(added); n > 0 {
		o.log.Debug("dropped known tasks", zap.Int("count", n))
	}
	var paceErr error
	for _, t := range added {
		o.state.Append(models.Message{Text: t, Type: models.MessageTaskAdded, Role: models.RoleAssistant})
		if paceErr == nil {
			paceErr = o.pacer.Pace(ctx)
		}
	}
	return paceErr
}

// Analyze asks the backend how to carry out task. The analysis is returned
// as received.
func (o *Orchestrator) Analyze(ctx context.Context, task string) (models.Analysis, error) {
	o.setPhase(models.PhaseAnalyzing)
	o.state.Append(models.Message{Text: task, Type: models.MessageAnalyzingTask, Role: models.RoleAssistant})
	run := o.state.Run()
	res, err := o.backend.Analyze(ctx, backend.AnalyzeRequest{
		Goal:          run.Goal,
		Task:          task,
		ModelSettings: run.Models.ReasoningSettings(),
		RunID:         run.ID,
	})
	if err != nil {
		o.log.Warn("analyze failed", zap.String("task", task), zap.Error(err))
		return models.Analysis{}, fmt.Errorf("analyze %q: %w", task, err)
	}
	return *res, nil
}

// Execute streams the backend's work on task into a new executing message
// and returns the full output.
func (o *Orchestrator) Execute(ctx context.Context, task string, analysis models.Analysis) (string, error) {
	o.setPhase(models.PhaseExecuting)
	h := o.state.Append(models.Message{
		Text: analysis.Action + " " + analysis.Arg,
		Type: models.MessageExecutingTask,
		Role: models.RoleAssistant,
	})
	run := o.state.Run()

	var total strings.Builder
	err := o.stream(func(sink backend.Sink) error {
		return o.backend.Execute(ctx, backend.ExecuteRequest{
			Goal:     run.Goal,
			Task:     task,
			Analysis: analysis,
			RunID:    run.ID,
		}, sink)
	}, h, &total)
	if err != nil {
		o.log.Warn("execute failed", zap.String("task", task), zap.Error(err))
		return "", fmt.Errorf("execute %q: %w", task, err)
	}
	return total.String(), nil
}

// Summarize streams a report over all results so far.
func (o *Orchestrator) Summarize(ctx context.Context) error {
	run := o.state.Run()
	if len(run.Results) == 0 {
		return &backend.ValidationError{Field: "results", Reason: "nothing to summarize yet"}
	}
	h := o.state.Append(models.Message{Type: models.MessageGeneratedReport, Role: models.RoleAssistant})
	err := o.stream(func(sink backend.Sink) error {
		return o.backend.Summarize(ctx, summarizeRequest(run), sink)
	}, h, nil)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	return nil
}

// Chat streams a reply to text, grounded in the results so far. The task
// queue is not touched.
func (o *Orchestrator) Chat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &backend.ValidationError{Field: "message", Reason: "empty"}
	}
	run := o.state.Run()
	h := o.state.Append(models.Message{Type: models.MessageGeneratedReport, Role: models.RoleAssistant})
	err := o.stream(func(sink backend.Sink) error {
		return o.backend.Chat(ctx, backend.ChatRequest{SummarizeRequest: summarizeRequest(run), Message: text}, sink)
	}, h, nil)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// UploadImage stores data with the backend and attaches the returned URL to
// the run, so later calls carry it.
func (o *Orchestrator) UploadImage(ctx context.Context, data []byte) (string, error) {
	res, err := o.backend.UploadImage(ctx, data)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	o.state.Append(models.Message{
		Text:     "Image uploaded",
		Type:     models.MessageUserInput,
		Role:     models.RoleUser,
		ImageURL: res.URL,
	})
	o.state.SetImageURL(res.URL)
	return res.URL, nil
}

// stream runs call with a sink that appends each chunk to h, and to total
// when given.
func (o *Orchestrator) stream(call func(backend.Sink) error, h *runstate.MessageHandle, total *strings.Builder) error {
	o.streamMu.Lock()
	defer o.streamMu.Unlock()
	return call(func(chunk string) error {
		h.AppendDetail(chunk)
		if total != nil {
			total.WriteString(chunk)
		}
		return nil
	})
}

func summarizeRequest(run models.Run) backend.SummarizeRequest {
	return backend.SummarizeRequest{
		Goal:                run.Goal,
		ModelSettings:       run.Models.ReasoningSettings(),
		VisionModelSettings: run.Models.VisionSettings(),
		ImageURL:            run.ImageURL,
		RunID:               run.ID,
		Results:             orEmpty(run.Results),
	}
}

// orEmpty keeps nil lists from encoding as null.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
