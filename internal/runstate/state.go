// Package runstate holds the progress of the active run and the message log
// shown to the user. Only the orchestrator writes it; everyone else reads
// copies through Snapshot or follows changes through Subscribe.
package runstate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/goalrunner/internal/models"
)

// ErrNotHead is returned when completing a task that is not first in the pending queue.
var ErrNotHead = errors.New("task is not at the head of the pending queue")

type State struct {
	mu       sync.RWMutex
	run      models.Run
	messages []*models.Message
	seq      int64

	hub   *hub
	now   func() time.Time
	newID func() string
}

func New() *State {
	return &State{
		run:   models.Run{Models: models.DefaultRunModels()},
		hub:   newHub(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Snapshot is a deep copy of the state at one instant. Seq is the sequence
// number of the last event it reflects; a subscriber resyncing from a
// snapshot skips feed events with Seq <= Snapshot.Seq.
type Snapshot struct {
	Seq      int64            `json:"seq"`
	Run      models.Run       `json:"run"`
	Messages []models.Message `json:"messages"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = *m
	}
	return Snapshot{Seq: s.seq, Run: s.run.Clone(), Messages: msgs}
}

func (s *State) Run() models.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Clone()
}

func (s *State) Goal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Goal
}

// Replace installs run as the active run. The message log is kept.
func (s *State) Replace(run models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = run.Clone()
	s.publishRunLocked()
}

// AddTasks appends to the task set and the pending queue every task whose
// exact text is not already known, and returns the ones it added.
func (s *State) AddTasks(tasks []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]struct{}, len(s.run.Tasks)+len(tasks))
	for _, t := range s.run.Tasks {
		known[t] = struct{}{}
	}
	var added []string
	for _, t := range tasks {
		if _, ok := known[t]; ok {
			continue
		}
		known[t] = struct{}{}
		added = append(added, t)
	}
	if len(added) == 0 {
		return nil
	}
	s.run.Tasks = append(s.run.Tasks, added...)
	s.run.Pending = append(s.run.Pending, added...)
	s.publishRunLocked()
	return added
}

// Head returns the first pending task without removing it.
func (s *State) Head() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.run.Pending) == 0 {
		return "", false
	}
	return s.run.Pending[0], true
}

// Complete moves task from the head of the queue to the completed list and
// records result as the latest output.
func (s *State) Complete(task, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.run.Pending) == 0 || s.run.Pending[0] != task {
		return fmt.Errorf("complete %q: %w", task, ErrNotHead)
	}
	s.run.Pending = s.run.Pending[1:]
	s.run.Completed = append(s.run.Completed, task)
	s.run.LastTask = task
	s.run.LastResult = result
	s.run.Results = append(s.run.Results, result)
	s.publishRunLocked()
	return nil
}

func (s *State) SetImageURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.ImageURL = url
	s.publishRunLocked()
}

// Append adds msg to the log, stamping its ID and timestamp, and returns a
// handle for later detail updates.
func (s *State) Append(msg models.Message) *MessageHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.newID()
	msg.Timestamp = s.now()
	m := &msg
	s.messages = append(s.messages, m)
	cp := *m
	s.publishLocked(Event{Kind: EventMessageAdded, Message: &cp, MessageID: m.ID})
	return &MessageHandle{state: s, msg: m}
}

// Subscribe follows state changes. The returned func must be called to release
// the subscription. Events are dropped while the channel is full; a gap in
// Seq shows where.
func (s *State) Subscribe() (<-chan Event, func()) {
	return s.SubscribeBuffered(subscriberBuffer)
}

// SubscribeBuffered is Subscribe with a channel of the given capacity, for
// readers that cannot resync from a snapshot.
func (s *State) SubscribeBuffered(buffer int) (<-chan Event, func()) {
	ch, unsub := s.hub.subscribe(buffer)
	return ch, unsub
}

func (s *State) publishRunLocked() {
	run := s.run.Clone()
	s.publishLocked(Event{Kind: EventRunUpdated, Run: &run})
}

func (s *State) publishLocked(ev Event) {
	s.seq++
	ev.Seq = s.seq
	s.hub.publish(ev)
}

// MessageHandle addresses one message in the log.
type MessageHandle struct {
	state *State
	msg   *models.Message
}

func (h *MessageHandle) ID() string { return h.msg.ID }

// AppendDetail extends the message's streamed body.
func (h *MessageHandle) AppendDetail(chunk string) {
	if chunk == "" {
		return
	}
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	h.msg.Detail += chunk
	s.publishLocked(Event{Kind: EventDetailAppended, MessageID: h.msg.ID, Chunk: chunk})
}

// Detail returns the body accumulated so far.
func (h *MessageHandle) Detail() string {
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	return h.msg.Detail
}
