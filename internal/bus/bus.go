package bus

import (
	"sync"
	"time"
)

// Topics broadcast between surfaces.
const (
	TopicSliceChanged  = "slice.changed"
	TopicPinnedChanged = "pinnedTabs.changed"
)

// Message is a fire-and-forget notification. Receivers treat it as an
// invalidation signal and re-read whatever it names.
type Message struct {
	Topic  string    `json:"topic"`
	Slice  string    `json:"slice,omitempty"`
	Origin string    `json:"origin"`
	SentAt time.Time `json:"sentAt"`
}

// Bus fans messages out to every subscriber. Delivery is best-effort and
// never blocks the publisher: a full subscriber buffer drops the message.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	next   int
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Subscribe returns a channel of messages and a func that unsubscribes.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish delivers msg to every current subscriber. It reports how many
// subscribers accepted it.
func (b *Bus) Publish(msg Message) int {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Close unsubscribes everyone. Later Publish calls deliver nothing.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.closed = true
}
