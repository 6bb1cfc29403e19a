package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livequiz-service/internal/access"
	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

const hostEmail = "host@x.com"

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService, domain.Quiz) {
	t.Helper()
	quizzes := memory.NewQuizStore()
	bank := memory.NewQuestionBank(memory.NewMapQuestionStore(), time.Minute)
	sessions := memory.NewSessionStore()
	policy := access.NewPolicy([]string{hostEmail}, "")
	service := app.NewQuizService(quizzes, bank, sessions, policy, zap.NewNop())

	ctx := context.Background()
	quiz, err := service.CreateQuiz(ctx, hostEmail, "Capitals", 30)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := service.AddQuestion(ctx, hostEmail, quiz.ID, "What is the capital of France?",
			[]string{"Berlin", "Paris", "Rome", "Madrid"}, 1); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}

	handler := NewWSHandler(service, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/play", handler.ServePlay)
	mux.HandleFunc("/ws/host", handler.ServeHost)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, quiz
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json (waiting for %s): %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("never received a %s message", want)
	return nil
}

// collect reads messages until every wanted type has been seen once.
func collect(t *testing.T, conn *websocket.Conn, wants ...string) map[string]map[string]any {
	t.Helper()
	seen := make(map[string]map[string]any)
	for i := 0; i < 10 && len(seen) < len(wants); i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json (waiting for %v): %v", wants, err)
		}
		for _, want := range wants {
			if msg.Type == want {
				seen[want] = msg.Payload
			}
		}
	}
	if len(seen) < len(wants) {
		t.Fatalf("missing messages: saw %v, wanted %v", seen, wants)
	}
	return seen
}

func TestHostDrivesQuizOverWebSocket(t *testing.T) {
	server, _, quiz := newTestServer(t)

	host := dial(t, server, "/ws/host?quizId="+quiz.ID+"&email="+hostEmail)
	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	state := readUntil(t, host, "state")
	if state["quiz"].(map[string]any)["status"] != "waiting" {
		t.Fatalf("expected waiting lobby, got %v", state)
	}

	player := dial(t, server, "/ws/play?code="+quiz.JoinCode+"&email=p1@x.com&name=Alice")
	readUntil(t, player, "joined")

	if err := host.WriteJSON(map[string]any{"type": "advance", "payload": map[string]any{"fromIndex": -1}}); err != nil {
		t.Fatalf("send advance: %v", err)
	}
	// The command ack and the pump's broadcast race; collect both.
	seen := collect(t, host, "advanced", "question")
	if seen["advanced"]["hasMore"] != true {
		t.Fatalf("expected more questions, got %v", seen["advanced"])
	}

	// Both sides see the sanitized question broadcast.
	for _, question := range []map[string]any{seen["question"], readUntil(t, player, "question")} {
		if question["text"] != "What is the capital of France?" {
			t.Fatalf("unexpected question: %v", question)
		}
		if _, leaked := question["correct"]; leaked {
			t.Fatalf("correct answer leaked to clients: %v", question)
		}
		if question["seconds"] != float64(30) {
			t.Fatalf("expected a 30s window, got %v", question["seconds"])
		}
	}
}

func TestParticipantAnswersOverWebSocket(t *testing.T) {
	server, service, quiz := newTestServer(t)
	ctx := context.Background()
	if err := service.Start(ctx, hostEmail, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	player := dial(t, server, "/ws/play?code="+quiz.JoinCode+"&email=p1@x.com&name=Alice")
	readUntil(t, player, "joined")

	if _, err := service.Advance(ctx, hostEmail, quiz.ID, domain.NoQuestion); err != nil {
		t.Fatalf("advance: %v", err)
	}
	readUntil(t, player, "question")

	if err := player.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"question": 0, "option": 1}}); err != nil {
		t.Fatalf("send answer: %v", err)
	}
	result := readUntil(t, player, "answerResult")
	if result["correct"] != true {
		t.Fatalf("expected a correct answer, got %v", result)
	}
	if result["awarded"].(float64) <= 0 {
		t.Fatalf("correct answer should score, got %v", result)
	}

	// The same submission again is rejected, not re-scored.
	if err := player.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"question": 0, "option": 1}}); err != nil {
		t.Fatalf("resend answer: %v", err)
	}
	readUntil(t, player, "error")
}

func TestPlayRejectsIncompleteRequests(t *testing.T) {
	server, _, quiz := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws/play?code=" + quiz.JoinCode)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing identity, got %d", resp.StatusCode)
	}
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	server, service, quiz := newTestServer(t)
	if err := service.Start(context.Background(), hostEmail, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	player := dial(t, server, "/ws/play?code="+quiz.JoinCode+"&email=p1@x.com&name=Alice")
	readUntil(t, player, "joined")

	if err := player.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload := readUntil(t, player, "error")
	if payload["message"] == "" {
		t.Fatalf("error payload should carry a message")
	}
}
