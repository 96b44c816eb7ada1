// Package events is the notification surface exposed to presentation
// layers. Producers publish typed events; consumers subscribe over
// channels. Publishing is fire-and-forget: the core never blocks on a slow
// consumer, and a subscriber whose buffer is full misses events rather
// than stalling a scan loop.
package events

import (
	"sync"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// Kind identifies an event type.
type Kind string

// Event kinds.
const (
	ItemIndexed   Kind = "item_indexed"
	ItemUpdated   Kind = "item_updated"
	ItemDeleted   Kind = "item_deleted"
	StatsUpdated  Kind = "stats_updated"
	ScanError     Kind = "scan_error"
	EmbedProgress Kind = "embed_progress"
	EmbedFailed   Kind = "embed_failed"
)

// Event is one notification. Only the fields relevant to the Kind are set.
type Event struct {
	Kind     Kind
	Item     *types.IndexedItem     // ItemIndexed, ItemUpdated
	ItemID   string                 // ItemDeleted, EmbedFailed
	FolderID string                 // ScanError
	Stats    *types.MonitoringStats // StatsUpdated
	Err      string                 // ScanError, EmbedFailed

	// EmbedProgress counters; Completed counts settled jobs (succeeded
	// or terminally failed) and is monotonically increasing.
	Completed int
	Total     int
}

const defaultBuffer = 256

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer. The returned cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, defaultBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full; drop rather than block a scan loop.
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
