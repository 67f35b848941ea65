package trace

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"htnplan/internal/planner"
)

// Envelope is an event as delivered by a Bus.
type Envelope struct {
	ID        uint64 // bus-wide sequence number
	Timestamp time.Time
	Event     planner.Event
}

// Bus collects events from any number of planners and dispatches them to
// channel subscribers. Events are batched to reduce churn for slow consumers;
// a full subscriber channel drops events rather than blocking the search.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Envelope
	enabled     atomic.Bool

	batchWindow time.Duration
	batchLimit  int

	buffer     []Envelope
	bufferMu   sync.Mutex
	flushTimer *time.Timer

	sequence atomic.Uint64
	dropped  atomic.Uint64

	kinds map[planner.EventKind]bool // empty means all allowed
}

// NewBus creates an enabled bus with default batching.
func NewBus() *Bus {
	b := &Bus{
		batchWindow: 100 * time.Millisecond,
		batchLimit:  32,
		buffer:      make([]Envelope, 0, 64),
		kinds:       make(map[planner.EventKind]bool),
	}
	b.enabled.Store(true)
	return b
}

// SetBatching changes the batch window and size. A limit of 1 dispatches
// every event as it arrives.
func (b *Bus) SetBatching(window time.Duration, limit int) {
	b.bufferMu.Lock()
	b.batchWindow = window
	if limit > 0 {
		b.batchLimit = limit
	}
	b.bufferMu.Unlock()
}

// Enable activates the bus.
func (b *Bus) Enable() { b.enabled.Store(true) }

// Disable deactivates the bus, flushing pending events first.
func (b *Bus) Disable() {
	b.Flush()
	b.enabled.Store(false)
}

// IsEnabled returns true if the bus is active.
func (b *Bus) IsEnabled() bool { return b.enabled.Load() }

// SetKinds restricts delivery to the listed kinds. No kinds means all.
func (b *Bus) SetKinds(kinds ...planner.EventKind) {
	b.mu.Lock()
	b.kinds = make(map[planner.EventKind]bool, len(kinds))
	for _, k := range kinds {
		b.kinds[k] = true
	}
	b.mu.Unlock()
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe(size int) <-chan Envelope {
	if size < 1 {
		size = 256
	}
	ch := make(chan Envelope, size)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch <-chan Envelope) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

// Emit implements planner.EventSink. It is safe to call from any goroutine.
func (b *Bus) Emit(e planner.Event) {
	if !b.enabled.Load() {
		return
	}
	b.mu.RLock()
	if len(b.kinds) > 0 && !b.kinds[e.Kind] {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	env := Envelope{ID: b.sequence.Add(1), Timestamp: time.Now(), Event: e}

	b.bufferMu.Lock()
	b.buffer = append(b.buffer, env)
	if len(b.buffer) >= b.batchLimit {
		b.flushLocked()
	} else if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.batchWindow, func() {
			b.bufferMu.Lock()
			b.flushLocked()
			b.bufferMu.Unlock()
		})
	}
	b.bufferMu.Unlock()
}

// Flush dispatches all buffered events immediately.
func (b *Bus) Flush() {
	b.bufferMu.Lock()
	b.flushLocked()
	b.bufferMu.Unlock()
}

// flushLocked sends buffered events (must hold bufferMu).
func (b *Bus) flushLocked() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if len(b.buffer) == 0 {
		return
	}

	sort.Slice(b.buffer, func(i, j int) bool {
		return b.buffer[i].ID < b.buffer[j].ID
	})

	b.mu.RLock()
	for _, sub := range b.subscribers {
		for _, env := range b.buffer {
			select {
			case sub <- env:
			default:
				b.dropped.Add(1)
			}
		}
	}
	b.mu.RUnlock()

	b.buffer = b.buffer[:0]
}

// Close flushes, disables the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.Disable()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}

// BusStats holds bus statistics.
type BusStats struct {
	Enabled         bool
	SubscriberCount int
	BufferedEvents  int
	TotalEmitted    uint64
	Dropped         uint64
}

// Stats returns current bus statistics.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	b.bufferMu.Lock()
	defer b.bufferMu.Unlock()
	defer b.mu.RUnlock()

	return BusStats{
		Enabled:         b.enabled.Load(),
		SubscriberCount: len(b.subscribers),
		BufferedEvents:  len(b.buffer),
		TotalEmitted:    b.sequence.Load(),
		Dropped:         b.dropped.Load(),
	}
}
