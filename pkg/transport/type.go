package transport

import (
	"context"
	"errors"
)

// Handler receives one message. Handlers may be called concurrently.
type Handler func(topic string, payload []byte)

// Channel is the pub/sub contract shared by the issuer and the devices.
// Delivery is at least once, messages are never retained.
type Channel interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(pattern string, handler Handler) error
	Unsubscribe(pattern string) error
	Close()
}

// Message is a published message as recorded by MemoryChannel.
type Message struct {
	Topic   string
	Payload []byte
}

var (
	ErrClosed       = errors.New("channel closed")
	ErrInvalidTopic = errors.New("invalid topic")
	ErrNotConnected = errors.New("not connected to broker")
)
