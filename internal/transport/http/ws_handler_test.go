package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := app.NewBattleService(
		memory.NewRoomStore(),
		memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute),
		memory.NewOpenUserDirectory(),
		memory.NewSessionDirectory(time.Minute),
		memory.NewEventRecorder(),
		app.Settings{MaxParticipants: 4, QuestionSeconds: 30},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketBattleFlow(t *testing.T) {
	server := newTestServer(t)

	// Creator connects without a room and opens one.
	alice := dial(t, server, "userId=u1")
	create := map[string]any{
		"type":    "create",
		"payload": map[string]any{"quizId": "quiz-1"},
	}
	if err := alice.WriteJSON(create); err != nil {
		t.Fatalf("write create: %v", err)
	}
	_, joined := readNext(alice, t, "joined")
	roomID, _ := joined["roomId"].(string)
	if roomID == "" {
		t.Fatalf("expected roomId in joined payload, got %v", joined)
	}

	// Second participant joins by room id.
	bob := dial(t, server, "userId=u2&roomId="+roomID)
	readNext(bob, t, "joined")

	// The creator sees the join broadcast.
	readNext(alice, t, "participant_joined")

	// Both ready up; the second toggle starts the battle.
	if err := alice.WriteJSON(map[string]any{"type": "ready"}); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	awaitTypes(alice, t, "ready_ack")

	if err := bob.WriteJSON(map[string]any{"type": "ready"}); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	awaitTypes(bob, t, "battle_started", "question")
	awaitTypes(alice, t, "battle_started", "question")

	// The correct answer earns points; the reveal goes only to the answerer.
	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId":    "q1",
			"questionIndex": 0,
			"text":          "4",
		},
	}
	if err := alice.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	result := awaitTypes(alice, t, "answer_result")["answer_result"]
	if correct, _ := result["correct"].(bool); !correct {
		t.Fatalf("expected a correct answer, got %v", result)
	}
	if canonical, _ := result["answer"].(string); canonical != "4" {
		t.Fatalf("expected the canonical answer in the reveal, got %v", result)
	}

	// The other participant sees only the progress broadcast.
	progress := awaitTypes(bob, t, "progress")["progress"]
	if userID, _ := progress["userId"].(string); userID != "u1" {
		t.Fatalf("expected progress for u1, got %v", progress)
	}
	if _, leaked := progress["answer"]; leaked {
		t.Fatalf("progress broadcast must not carry the canonical answer: %v", progress)
	}
}

func TestWebSocketRejectsUnknownRoom(t *testing.T) {
	server := newTestServer(t)

	conn := dial(t, server, "userId=u1&roomId=missing")
	_, payload := readNext(conn, t, "error")
	if kind, _ := payload["kind"].(string); kind != string(domain.KindNotFound) {
		t.Fatalf("expected kind %s, got %v", domain.KindNotFound, payload)
	}
}

func TestWebSocketDuplicateAnswerError(t *testing.T) {
	server := newTestServer(t)

	alice := dial(t, server, "userId=u1")
	if err := alice.WriteJSON(map[string]any{"type": "create", "payload": map[string]any{"quizId": "quiz-1"}}); err != nil {
		t.Fatalf("write create: %v", err)
	}
	_, joined := readNext(alice, t, "joined")
	roomID, _ := joined["roomId"].(string)

	bob := dial(t, server, "userId=u2&roomId="+roomID)
	readNext(bob, t, "joined")

	_ = alice.WriteJSON(map[string]any{"type": "ready"})
	_ = bob.WriteJSON(map[string]any{"type": "ready"})
	awaitTypes(alice, t, "battle_started", "question")

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId":    "q1",
			"questionIndex": 0,
			"text":          "4",
		},
	}
	_ = alice.WriteJSON(answer)
	awaitTypes(alice, t, "answer_result")

	_ = alice.WriteJSON(answer)
	errMsg := awaitTypes(alice, t, "error")["error"]
	if kind, _ := errMsg["kind"].(string); kind != string(domain.KindConflict) {
		t.Fatalf("expected kind %s, got %v", domain.KindConflict, errMsg)
	}
}

// awaitTypes reads messages until every wanted type has been seen, returning
// the payload for each. Broadcasts interleave with acks, so ordering between
// them is not asserted.
func awaitTypes(conn *websocket.Conn, t *testing.T, wanted ...string) map[string]map[string]any {
	t.Helper()
	missing := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		missing[w] = true
	}
	seen := make(map[string]map[string]any, len(wanted))
	for i := 0; i < 10 && len(missing) > 0; i++ {
		typ, payload := readNext(conn, t, "")
		if missing[typ] {
			delete(missing, typ)
			seen[typ] = payload
		}
	}
	if len(missing) > 0 {
		t.Fatalf("never received message types %v", missing)
	}
	return seen
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.QuestionRef{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					Answer:           "4",
					Points:           10,
					TimeLimitSeconds: 30,
				},
				{
					ID:               "q2",
					Text:             "Which planet is known as the red planet?",
					Answer:           "Mars",
					Points:           10,
					TimeLimitSeconds: 30,
				},
			},
		},
	}
}

func TestTrySendAbandonedAfterWriterExit(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})

	if !trySend(send, writerDone, outboundMessage[any]{Type: "first"}) {
		t.Fatalf("expected send into a free buffer to succeed")
	}

	// Writer gone, buffer full: the send must be abandoned, not block the
	// read loop.
	close(writerDone)
	result := make(chan bool, 1)
	go func() {
		result <- trySend(send, writerDone, outboundMessage[any]{Type: "second"})
	}()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected send to be dropped once the writer exited")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send blocked with a dead writer")
	}
}
