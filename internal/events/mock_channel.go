package events

import (
	"context"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// mockChannel records declarations and publishings in memory.
type mockChannel struct {
	declareErr error
	publishErr error
	exchanges  []string
	published  []amqp091.Publishing
	keys       []string
	mu         sync.Mutex
	closed     bool
}

func (m *mockChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp091.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.declareErr != nil {
		return m.declareErr
	}
	m.exchanges = append(m.exchanges, name)
	return nil
}

func (m *mockChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.keys = append(m.keys, key)
	m.published = append(m.published, msg)
	return nil
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
