package transport

import (
	"context"
	"log"
	"sync"
)

// MemoryChannel dispatches synchronously to subscribers in the publishing
// goroutine. It is used by tests and by the in-process demo.
type MemoryChannel struct {
	mu        sync.Mutex
	subs      map[string]Handler
	order     []string
	published []Message
	closed    bool
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{subs: make(map[string]Handler)}
}

func (c *MemoryChannel) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	c.published = append(c.published, msg)

	var handlers []Handler
	for _, pattern := range c.order {
		if MatchTopic(pattern, topic) {
			handlers = append(handlers, c.subs[pattern])
		}
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		log.Printf("[WARN] No subscribers for %s", topic)
		return nil
	}
	// Handlers may publish themselves, so no lock is held here.
	for _, h := range handlers {
		h(topic, msg.Payload)
	}
	return nil
}

func (c *MemoryChannel) Subscribe(pattern string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, exists := c.subs[pattern]; !exists {
		c.order = append(c.order, pattern)
	}
	c.subs[pattern] = handler
	return nil
}

func (c *MemoryChannel) Unsubscribe(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subs[pattern]; !exists {
		return nil
	}
	delete(c.subs, pattern)
	for i, p := range c.order {
		if p == pattern {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *MemoryChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[string]Handler)
	c.order = nil
}

// Published returns a copy of every message published so far.
func (c *MemoryChannel) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.published))
	copy(out, c.published)
	return out
}

// PublishedTo returns the messages published on exactly this topic.
func (c *MemoryChannel) PublishedTo(topic string) []Message {
	var out []Message
	for _, m := range c.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
