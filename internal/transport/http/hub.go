package http

import (
	"encoding/json"
	"log"
	"sync"
)

// envelope is the wire format of every fan-out event.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// connection is one participant's attachment to a quiz.
type connection struct {
	quizID string
	userID string
	send   chan []byte
}

// Hub is the fan-out channel: it tracks connections per quiz and delivers
// events to all of them or to a single participant. Slow consumers have their
// messages dropped rather than blocking the broadcast.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[string]*connection // quizID -> userID -> conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]*connection)}
}

func (h *Hub) add(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn.quizID] == nil {
		h.conns[conn.quizID] = make(map[string]*connection)
	}
	if prev, ok := h.conns[conn.quizID][conn.userID]; ok {
		close(prev.send)
	}
	h.conns[conn.quizID][conn.userID] = conn
}

func (h *Hub) remove(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.conns[conn.quizID][conn.userID]; ok && existing == conn {
		delete(h.conns[conn.quizID], conn.userID)
		close(conn.send)
		if len(h.conns[conn.quizID]) == 0 {
			delete(h.conns, conn.quizID)
		}
	}
}

// BroadcastAll implements app.Broadcaster for all participants of a quiz.
func (h *Hub) BroadcastAll(quizID, eventType string, payload any) {
	data, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("hub: marshal %s: %v", eventType, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns[quizID] {
		select {
		case conn.send <- data:
		default:
			// drop for slow consumers
		}
	}
}

// SendTo implements app.Broadcaster for a single participant.
func (h *Hub) SendTo(quizID, userID, eventType string, payload any) {
	data, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("hub: marshal %s: %v", eventType, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn, ok := h.conns[quizID][userID]; ok {
		select {
		case conn.send <- data:
		default:
		}
	}
}
