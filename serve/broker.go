package serve

import (
	"sync"
)

const maxSubscribers = 50

// EventBroker fans out run events to SSE subscribers.
type EventBroker struct {
	// subscribers maps each channel to the conversation it follows.
	// An empty conversation follows all of them.
	subscribers map[chan BrokerEvent]string
	mu          sync.RWMutex
}

// NewEventBroker creates a new broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		subscribers: make(map[chan BrokerEvent]string),
	}
}

// Subscribe returns a channel that receives events of one conversation,
// or of every conversation when conversation is empty. It returns nil
// when the broker is full. The caller must call Unsubscribe when done.
func (b *EventBroker) Subscribe(conversation string) chan BrokerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers) >= maxSubscribers {
		return nil
	}

	ch := make(chan BrokerEvent, 64)
	b.subscribers[ch] = conversation
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBroker) Unsubscribe(ch chan BrokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Count returns the number of subscribers.
func (b *EventBroker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing SSE handlers to exit.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// Publish sends an event to every subscriber following its conversation.
// A subscriber whose buffer is full misses the event.
func (b *EventBroker) Publish(event BrokerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, conv := range b.subscribers {
		if conv != "" && conv != event.Conversation {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}
