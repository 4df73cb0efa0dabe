package runstate

import (
	"sync"

	"github.com/example/goalrunner/internal/models"
)

type EventKind string

const (
	EventMessageAdded   EventKind = "message_added"
	EventDetailAppended EventKind = "detail_appended"
	EventRunUpdated     EventKind = "run_updated"
)

// Event is one change to the run state, in the order it was applied.
type Event struct {
	Kind      EventKind       `json:"event"`
	Seq       int64           `json:"seq"`
	Message   *models.Message `json:"message,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Chunk     string          `json:"chunk,omitempty"`
	Run       *models.Run     `json:"run,omitempty"`
}

const subscriberBuffer = 64

type subscriber chan Event

type hub struct {
	mu   sync.RWMutex
	subs map[subscriber]struct{}
}

func newHub() *hub { return &hub{subs: map[subscriber]struct{}{}} }

func (h *hub) subscribe(buffer int) (subscriber, func()) {
	ch := make(subscriber, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// publish never blocks; a subscriber with a full buffer misses the event and
// has to resync from a snapshot.
func (h *hub) publish(ev Event) {
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.RUnlock()
}
