// Package notifier defines the notification capability consumed by the
// services and an in-memory fan-out implementation. The transport is an
// injected dependency, never process-global state, so every consumer can be
// tested without a live channel.
package notifier

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one notification payload
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage builds a Message with the current timestamp
func NewMessage(msgType string, data any) Message {
	raw, _ := json.Marshal(data)
	return Message{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier is the capability for pushing messages to connected clients
type Notifier interface {
	SendToUser(userID string, msg Message)
	BroadcastToRole(role string, msg Message)
	BroadcastToAll(msg Message)
}

// Handler receives messages for one subscription
type Handler func(msg Message)

type subscriber struct {
	userID  string
	role    string
	handler Handler
}

// Bus is an in-memory Notifier with per-connection subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]subscriber
}

// NewBus creates a new in-memory notification bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]subscriber),
	}
}

// Subscribe registers a handler for one connected client and returns an
// unsubscribe function.
func (b *Bus) Subscribe(userID, role string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriptionID := uuid.New().String()
	b.subscribers[subscriptionID] = subscriber{
		userID:  userID,
		role:    role,
		handler: handler,
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, subscriptionID)
	}
}

// SendToUser delivers a message to every connection of one user
func (b *Bus) SendToUser(userID string, msg Message) {
	b.deliver(msg, func(s subscriber) bool { return s.userID == userID })
}

// BroadcastToRole delivers a message to every connection of a role
func (b *Bus) BroadcastToRole(role string, msg Message) {
	b.deliver(msg, func(s subscriber) bool { return s.role == role })
}

// BroadcastToAll delivers a message to every connection
func (b *Bus) BroadcastToAll(msg Message) {
	b.deliver(msg, func(subscriber) bool { return true })
}

func (b *Bus) deliver(msg Message, match func(subscriber) bool) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if match(s) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	// Handlers run outside the lock so a slow consumer cannot block
	// subscription changes.
	for _, h := range handlers {
		h(msg)
	}
}

// SubscriberCount returns the number of live subscriptions, for monitoring
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Noop is a Notifier that discards every message, for tests and for running
// without a push channel.
type Noop struct{}

// SendToUser implements Notifier
func (Noop) SendToUser(string, Message) {}

// BroadcastToRole implements Notifier
func (Noop) BroadcastToRole(string, Message) {}

// BroadcastToAll implements Notifier
func (Noop) BroadcastToAll(Message) {}
