// Package eventbus is the kernel's internal publish/subscribe channel: a
// topic -> handler-list map plus a wildcard list, delivering asynchronously
// by default and inline via PublishSync for test and critical paths.
package eventbus

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deskflow/kernel/internal/logging"
)

// Handler receives a topic and its payload. A handler that panics is
// recovered and logged; other subscribers are unaffected.
type Handler func(topic string, payload interface{})

// Token is returned by Subscribe and cancels that subscription when passed
// to Unsubscribe.
type Token struct {
	id     uint64
	topic  string // "" for a wildcard subscription
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the concrete EventBus. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	wildcard []subscription
	nextID   uint64
}

func New() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers handler for topic and returns a Token that cancels
// it. PublishSync delivers to subscribers of the same topic in the order
// of subscription; Publish runs every handler on its own goroutine and so
// gives no ordering between subscribers.
func (b *Bus) Subscribe(topic string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})
	return Token{id: id, topic: topic}
}

// SubscribeAll registers a wildcard handler invoked for every published
// topic, in addition to any topic-specific subscribers.
func (b *Bus) SubscribeAll(handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	return Token{id: id, topic: ""}
}

// Unsubscribe cancels the subscription identified by tok.
func (b *Bus) Unsubscribe(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tok.topic == "" {
		b.wildcard = removeSub(b.wildcard, tok.id)
		return
	}
	b.handlers[tok.topic] = removeSub(b.handlers[tok.topic], tok.id)
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) snapshot(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]subscription, 0, len(b.handlers[topic])+len(b.wildcard))
	out = append(out, b.handlers[topic]...)
	out = append(out, b.wildcard...)
	return out
}

func safeInvoke(h Handler, topic string, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("eventbus: handler for topic %q panicked: %v", topic, r)
		}
	}()
	h(topic, payload)
}

// Publish delivers payload to every subscriber of topic (plus wildcard
// subscribers) asynchronously, one goroutine per handler with no limit on
// how many run at once. It does not wait for delivery to complete.
func (b *Bus) Publish(topic string, payload interface{}) {
	subs := b.snapshot(topic)
	if len(subs) == 0 {
		return
	}
	var g errgroup.Group
	for _, s := range subs {
		s := s
		g.Go(func() error {
			safeInvoke(s.handler, topic, payload)
			return nil
		})
	}
	go func() { _ = g.Wait() }()
}

// PublishSync delivers payload to every subscriber inline, in subscription
// order, and returns only once every handler has run. Used on test and
// critical paths that need delivery to have happened before proceeding.
func (b *Bus) PublishSync(topic string, payload interface{}) {
	for _, s := range b.snapshot(topic) {
		safeInvoke(s.handler, topic, payload)
	}
}
