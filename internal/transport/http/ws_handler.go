package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSHandler upgrades connections and wires them into the session runtime.
type WSHandler struct {
	manager  *app.SessionManager
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(manager *app.SessionManager, hub *Hub) *WSHandler {
	return &WSHandler{
		manager: manager,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	QuizID              string `json:"quizId"`
	QuestionIndex       int    `json:"questionIndex"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
	ParticipantID       string `json:"participantId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS attaches a participant to a quiz. The new connection alone receives
// exactly one session-state event: the current question of an in-progress
// session, no_active_quiz, or quiz_ended.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if quizID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	conn := &connection{
		quizID: quizID,
		userID: userID,
		send:   make(chan []byte, 16),
	}
	h.hub.add(conn)
	go h.writePump(wsConn, conn)

	eventType, payload := h.manager.AttachState(r.Context(), quizID)
	h.hub.SendTo(quizID, userID, eventType, payload)

	h.readLoop(r.Context(), wsConn, conn, displayName)
}

func (h *WSHandler) readLoop(ctx context.Context, wsConn *websocket.Conn, conn *connection, displayName string) {
	defer func() {
		h.hub.remove(conn)
		wsConn.Close()
	}()

	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var inbound inboundMessage
		if err := wsConn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error: %v", err)
			}
			return
		}

		switch inbound.Type {
		case "submit_answer":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.hub.SendTo(conn.quizID, conn.userID, "error", errorPayload{Message: "invalid submit_answer payload"})
				continue
			}
			if payload.QuizID == "" {
				payload.QuizID = conn.quizID
			}
			// The connection identity is authoritative over the payload's
			// participantId.
			result, err := h.manager.Submit(ctx, payload.QuizID, conn.userID, displayName, payload.QuestionIndex, payload.SelectedOptionIndex)
			if err != nil {
				h.hub.SendTo(conn.quizID, conn.userID, "error", errorPayload{Message: submitErrorMessage(err)})
				continue
			}
			h.hub.SendTo(conn.quizID, conn.userID, app.EventAnswerResult, result)
		default:
			h.hub.SendTo(conn.quizID, conn.userID, "error", errorPayload{Message: "unsupported message type"})
		}
	}
}

func (h *WSHandler) writePump(wsConn *websocket.Conn, conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizNotLive):
		return "no live quiz to answer"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "unknown question"
	case errors.Is(err, domain.ErrOptionNotFound):
		return "unknown option"
	default:
		return err.Error()
	}
}
