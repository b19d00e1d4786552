package recipebox

import (
	"sync"

	"recipebox/internal/model"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventSaved        EventKind = "saved"
	EventDeleted      EventKind = "deleted"
	EventSynced       EventKind = "synced"
	EventConnectivity EventKind = "connectivity"
)

// Event is published to subscribers after a change is applied locally,
// after a drain pass, and on connectivity transitions.
type Event struct {
	Kind     EventKind
	RecipeID string           // saved, deleted
	Online   bool             // connectivity
	Result   model.SyncResult // synced
}

// eventBus is a small synchronous publish/subscribe registry.
type eventBus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (b *eventBus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// publish calls every subscriber outside the lock, so a subscriber may unsubscribe.
func (b *eventBus) publish(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
