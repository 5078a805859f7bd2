package mocks

import (
	"context"
	"sync"
)

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
// Without a ConsumeFunc, published messages are delivered to Consume.
type MockMessageBroker struct {
	PublishFunc func(ctx context.Context, message []byte) error
	ConsumeFunc func(ctx context.Context) (<-chan []byte, error)
	CloseFunc   func() error

	once     sync.Once
	messages chan []byte
}

func (m *MockMessageBroker) queue() chan []byte {
	m.once.Do(func() { m.messages = make(chan []byte, 100) })
	return m.messages
}

func (m *MockMessageBroker) Publish(ctx context.Context, message []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, message); err != nil {
			return err
		}
	}
	select {
	case m.queue() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockMessageBroker) Consume(ctx context.Context) (<-chan []byte, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx)
	}
	return m.queue(), nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
