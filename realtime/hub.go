package realtime

import (
	"sync"
	"time"
)

// Event is pushed to a user's live connections
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to every connection a user has open
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint][]*subscriber // userID -> subscribers
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint][]*subscriber)}
}

// Subscribe registers a connection for userID. The returned func unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(userID uint) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, 64)}
	h.subscribers[userID] = append(h.subscribers[userID], sub)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.subscribers[userID]
			for i, s := range subs {
				if s == sub {
					h.subscribers[userID] = append(subs[:i], subs[i+1:]...)
					close(sub.ch)
					break
				}
			}
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
		})
	}
	return sub.ch, unsub
}

// Publish delivers event to userID's connections and reports how many took it.
// Full buffers drop the event.
func (h *Hub) Publish(userID uint, event Event) int {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers[userID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Connected returns the number of open connections for userID
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
