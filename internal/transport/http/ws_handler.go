package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

type WSHandler struct {
	service  *app.BattleService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService) *WSHandler {
	return &WSHandler{
		service: service,
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

type createPayload struct {
	QuizID          string `json:"quizId"`
	MaxParticipants int    `json:"maxParticipants"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
	Text          string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type readyAck struct {
	Ready   bool `json:"ready"`
	Started bool `json:"started"`
}

type participantSummary struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
	Active      bool   `json:"active"`
	Score       int    `json:"score"`
}

type roomSummary struct {
	RoomID          string               `json:"roomId"`
	QuizID          string               `json:"quizId"`
	Status          domain.RoomStatus    `json:"status"`
	MaxParticipants int                  `json:"maxParticipants"`
	QuestionCount   int                  `json:"questionCount"`
	Participants    []participantSummary `json:"participants"`
}

func summarize(room *domain.Room) roomSummary {
	participants := make([]participantSummary, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, participantSummary{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Ready:       p.Ready,
			Active:      p.Active,
			Score:       p.Score,
		})
	}
	return roomSummary{
		RoomID:          room.ID,
		QuizID:          room.QuizID,
		Status:          room.Status,
		MaxParticipants: room.MaxParticipants,
		QuestionCount:   len(room.Questions),
		Participants:    participants,
	}
}

func errPayload(err error) errorPayload {
	return errorPayload{Kind: domain.Kind(err), Message: err.Error()}
}

// trySend queues an outbound message unless the writer goroutine has already
// exited on a dead socket. An unguarded send would wedge the read loop once
// the buffer fills.
func trySend(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

// ServeWS upgrades the connection and wires it into the battle use cases.
// Connect with ?userId=...&roomId=... to join an existing room, or with
// ?userId=... alone and send a "create" message to open one.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	roomID := r.URL.Query().Get("roomId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	connID := uuid.NewString()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})
	pumpStarted := false

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	emit := func(typ string, payload any) {
		trySend(send, writerDone, outboundMessage[any]{Type: typ, Payload: payload})
	}

	var cancelSub func()
	startPump := func(updates <-chan app.RoomEvent) {
		pumpStarted = true
		go func() {
			defer close(pumpDone)
			for {
				select {
				case update, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: update.Type, Payload: update.Payload}:
					case <-writerDone:
						return
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}

	attach := func(id string) bool {
		if err := h.service.RegisterConnection(ctx, connID, id, userID); err != nil {
			emit("error", errPayload(err))
			return false
		}
		updates, cancel, err := h.service.Subscribe(ctx, id)
		if err != nil {
			emit("error", errPayload(err))
			return false
		}
		cancelSub = cancel
		roomID = id
		startPump(updates)
		return true
	}

	if roomID != "" {
		room, err := h.service.Join(ctx, roomID, userID)
		if errors.Is(err, domain.ErrAlreadyParticipating) {
			room, err = h.service.GetRoom(ctx, roomID)
		}
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[any]{Type: "error", Payload: errPayload(err)})
			close(send)
			<-writerDone
			return
		}
		if !attach(room.ID) {
			close(send)
			<-writerDone
			return
		}
		emit("joined", summarize(room))
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "create":
			if roomID != "" {
				emit("error", errPayload(domain.ErrAlreadyParticipating))
				continue
			}
			var payload createPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID == "" {
				emit("error", errorPayload{Kind: domain.KindInvalidState, Message: "invalid create payload"})
				continue
			}
			room, err := h.service.CreateRoom(ctx, userID, payload.QuizID, payload.MaxParticipants)
			if err != nil {
				emit("error", errPayload(err))
				continue
			}
			if attach(room.ID) {
				emit("joined", summarize(room))
			}
		case "ready":
			if !h.touch(ctx, emit, connID, roomID, userID) {
				continue
			}
			ready, started, err := h.service.ToggleReady(ctx, roomID, userID)
			if err != nil {
				emit("error", errPayload(err))
				continue
			}
			emit("ready_ack", readyAck{Ready: ready, Started: started})
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Kind: domain.KindInvalidState, Message: "invalid answer payload"})
				continue
			}
			if !h.touch(ctx, emit, connID, roomID, userID) {
				continue
			}
			result, err := h.service.SubmitAnswer(ctx, roomID, userID, app.AnswerSubmission{
				QuestionID:    payload.QuestionID,
				QuestionIndex: payload.QuestionIndex,
				Text:          payload.Text,
			})
			if err != nil {
				emit("error", errPayload(err))
				continue
			}
			// The reveal goes only to the connection that answered.
			emit("answer_result", result.Reveal)
		case "leave":
			if roomID == "" {
				continue
			}
			if err := h.service.Leave(ctx, roomID, userID); err != nil {
				emit("error", errPayload(err))
				continue
			}
			_ = h.service.DisconnectConnection(ctx, connID)
			emit("left", map[string]string{"roomId": roomID})
		case "end":
			if err := h.service.EndBattle(ctx, roomID, userID); err != nil {
				emit("error", errPayload(err))
			}
		default:
			emit("error", errorPayload{Kind: domain.KindInvalidState, Message: "unsupported message type"})
		}
	}

	// Socket gone: forfeit via the session directory. A prior explicit leave
	// already removed the session entry, making this a no-op.
	if err := h.service.DisconnectConnection(context.Background(), connID); err != nil && !errors.Is(err, domain.ErrBattleFinished) && !errors.Is(err, domain.ErrParticipantInactive) {
		log.Printf("ws disconnect cleanup: %v", err)
	}

	if cancelSub != nil {
		cancelSub()
	}
	close(closeSignals)
	if pumpStarted {
		<-pumpDone
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) touch(ctx context.Context, emit func(string, any), connID, roomID, userID string) bool {
	if roomID == "" {
		emit("error", errPayload(domain.ErrRoomNotFound))
		return false
	}
	if err := h.service.TouchConnection(ctx, connID, roomID, userID); err != nil {
		emit("error", errPayload(err))
		return false
	}
	return true
}
