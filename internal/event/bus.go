// Package event provides the pub/sub event bus using watermill.
//
// Buses are constructed explicitly and injected. A running agent has one
// agent-wide bus; each ChatSession additionally owns a session-local bus
// whose events are forwarded to the agent bus tagged with the session id.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type represents the type of event.
type Type string

const (
	// SessionReset is published after a session's conversation is cleared.
	SessionReset Type = "session:reset"
	// SessionContinued is published when compaction creates a continuation
	// session.
	SessionContinued Type = "session:continued"
	// LLMSwitched is published when a session (or all sessions) rebind to a
	// different LLM configuration.
	LLMSwitched Type = "llm:switched"
	// ResponseCompleted is emitted on a session-local bus when an LLM call
	// finishes, carrying the call's token usage.
	ResponseCompleted Type = "response:completed"
)

// Event represents an event to be published.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus manages pub/sub using watermill's gochannel for infrastructure while
// keeping direct typed dispatch, preserving payload type information.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
	cancel context.CancelFunc
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	_, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[Type][]subscriberEntry),
		cancel:      cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribeGlobal(id)
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

func (b *Bus) collect(eventType Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]Subscriber, 0, len(b.subscribers[eventType])+len(b.global))
	for _, entry := range b.subscribers[eventType] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Publish sends an event to all subscribers asynchronously.
// Each subscriber is called in its own goroutine to prevent blocking.
func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		go sub(event)
	}
}

// PublishSync sends an event to all subscribers synchronously.
// All subscribers are called in the current goroutine before returning.
func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
}

// Close closes the bus and drops all subscribers. Safe to call twice.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()

	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel for advanced use cases
// such as middleware or switching to a distributed backend.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
