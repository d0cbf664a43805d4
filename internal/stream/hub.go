// Package stream fans session events out to live subscribers. The hub
// implements the session event sink and forwards each event to every
// sink registered for that session; a websocket adapter turns sinks
// into client connections.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is the wire envelope pushed to subscribers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Sink receives encoded messages for one session. Send must not block
// indefinitely; a failed send drops the sink from the hub.
type Sink interface {
	Send(data []byte) error
	Close()
}

// Hub is the per-session fan-out registry.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[Sink]struct{}
	logger *slog.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]map[Sink]struct{}), logger: logger}
}

// Subscribe registers a sink for a session's events.
func (h *Hub) Subscribe(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[Sink]struct{})
		h.subs[sessionID] = set
	}
	set[sink] = struct{}{}
}

// Unsubscribe removes a sink and closes it.
func (h *Hub) Unsubscribe(sessionID string, sink Sink) {
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if ok {
		delete(set, sink)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
	if ok {
		sink.Close()
	}
}

// SubscriberCount reports how many sinks a session has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Publish encodes the event once and sends it to a snapshot of the
// session's sinks. Sinks whose send fails are pruned so one dead
// connection cannot wedge the rest.
func (h *Hub) Publish(sessionID, eventType string, payload any) {
	data, err := json.Marshal(Message{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Warn("event encode failed", "session_id", sessionID, "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	snapshot := make([]Sink, 0, len(h.subs[sessionID]))
	for sink := range h.subs[sessionID] {
		snapshot = append(snapshot, sink)
	}
	h.mu.RUnlock()

	var dead []Sink
	for _, sink := range snapshot {
		if err := sink.Send(data); err != nil {
			dead = append(dead, sink)
		}
	}
	for _, sink := range dead {
		h.logger.Debug("dropping dead subscriber", "session_id", sessionID, "type", eventType)
		h.Unsubscribe(sessionID, sink)
	}
}
