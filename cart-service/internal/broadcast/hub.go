package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/fjod/go_cart/cart-service/internal/metrics"
)

const DefaultSendBuffer = 32

// Subscriber is one live connection. Messages arrive on C; the channel is
// closed when the subscriber is removed from the hub.
type Subscriber struct {
	id     uint64
	send   chan []byte
	topics map[string]struct{}
	closed bool
}

func (s *Subscriber) C() <-chan []byte {
	return s.send
}

func (s *Subscriber) ID() uint64 {
	return s.id
}

// Hub is the process-local topic registry.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	nextID atomic.Uint64
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Register() *Subscriber {
	return &Subscriber{
		id:     h.nextID.Add(1),
		send:   make(chan []byte, h.buffer),
		topics: make(map[string]struct{}),
	}
}

func (h *Hub) Subscribe(s *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(s *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(s, topic)
}

func (h *Hub) unsubscribeLocked(s *Subscriber, topic string) {
	delete(s.topics, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Remove drops s from every topic and closes its channel. Safe to call twice.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for topic := range s.topics {
		h.unsubscribeLocked(s, topic)
	}
	s.closed = true
	close(s.send)
}

// Deliver hands msg to every subscriber of any of topics, at most once per
// subscriber. A subscriber whose buffer is full misses the message.
func (h *Hub) Deliver(topics []string, msg []byte) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Subscriber]struct{})
	for _, topic := range topics {
		for s := range h.topics[topic] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			select {
			case s.send <- msg:
				delivered++
			default:
				dropped++
			}
		}
	}
	if delivered > 0 {
		metrics.BroadcastMessages.WithLabelValues("local").Add(float64(delivered))
	}
	if dropped > 0 {
		metrics.BroadcastMessages.WithLabelValues("dropped").Add(float64(dropped))
	}
	return delivered, dropped
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
