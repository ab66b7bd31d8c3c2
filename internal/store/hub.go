package store

import "sync"

// Hub fans change topics out to in-process subscribers.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(string)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func(string))}
}

// Subscribe registers fn for topic. fn runs on the publishing goroutine and
// must not block.
func (h *Hub) Subscribe(topic string, fn func(topic string)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]func(string))
	}
	h.subs[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
		})
	}
}

func (h *Hub) Publish(topic string) {
	h.mu.RLock()
	fns := make([]func(string), 0, len(h.subs[topic]))
	for _, fn := range h.subs[topic] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(topic)
	}
}

// Broadcast notifies every subscriber of every topic. Used after a lost
// LISTEN connection, when individual notifications may have been missed.
func (h *Hub) Broadcast() {
	h.mu.RLock()
	topics := make([]string, 0, len(h.subs))
	for topic := range h.subs {
		topics = append(topics, topic)
	}
	h.mu.RUnlock()

	for _, topic := range topics {
		h.Publish(topic)
	}
}
