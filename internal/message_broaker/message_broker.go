package message_broaker

import "context"

// MessageBroker moves opaque messages between runner processes. Every
// message published is delivered to exactly one consumer.
type MessageBroker interface {
	Publish(ctx context.Context, message []byte) error
	Consume(ctx context.Context) (<-chan []byte, error)
	Close() error
}
