package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and wires them into the
// quiz use cases. Identity arrives as a verified email in the query string;
// authentication itself happens upstream of this service.
type WSHandler struct {
	service  *app.QuizService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
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

type answerPayload struct {
	Question int `json:"question"`
	Option   int `json:"option"`
}

type advancePayload struct {
	FromIndex int `json:"fromIndex"`
}

type advanceResult struct {
	HasMore bool `json:"hasMore"`
}

type sharePayload struct {
	Email string `json:"email"`
}

// questionPayload is the participant-facing view of the active question; the
// correct index never leaves the server while the question is live.
type questionPayload struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Options   []string  `json:"options"`
	StartedAt time.Time `json:"startedAt"`
	Seconds   int       `json:"seconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errMsg(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

type wsError string

func (e wsError) Error() string { return string(e) }

const (
	errInvalidPayload  = wsError("invalid payload")
	errUnsupportedType = wsError("unsupported message type")
)

// ServePlay handles a participant connection: join by code, stream state and
// question broadcasts, accept answers.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	email := r.URL.Query().Get("email")
	displayName := r.URL.Query().Get("name")
	photoURL := r.URL.Query().Get("photo")
	if code == "" || email == "" || displayName == "" {
		http.Error(w, "missing code, email, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	joined, err := h.service.Join(r.Context(), code, email, displayName, photoURL)
	if err != nil {
		_ = conn.WriteJSON(errMsg(err))
		return
	}
	quizID := joined.Quiz.ID

	updates, cancel, err := h.service.Subscribe(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(errMsg(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := h.startWriter(conn, send)
	updatesDone := make(chan struct{})

	go func() {
		defer close(updatesDone)
		h.pumpUpdates(r.Context(), quizID, updates, send, closeSignals)
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg(errInvalidPayload)
				continue
			}
			result, err := h.service.SubmitAnswer(r.Context(), quizID, email, payload.Question, payload.Option)
			if err != nil {
				send <- errMsg(err)
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- errMsg(errUnsupportedType)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// ServeHost handles an organizer connection: lifecycle commands plus the
// same state stream participants see.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	email := r.URL.Query().Get("email")
	if quizID == "" || email == "" {
		http.Error(w, "missing quizId or email", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := h.startWriter(conn, send)

	// No session exists until the quiz is started, so the subscription is
	// (re)attempted after each successful command.
	var cancel func()
	var updatesDone chan struct{}
	subscribe := func() {
		if cancel != nil {
			return
		}
		updates, c, err := h.service.Subscribe(r.Context(), quizID)
		if err != nil {
			return
		}
		cancel = c
		updatesDone = make(chan struct{})
		done := updatesDone
		go func() {
			defer close(done)
			h.pumpUpdates(r.Context(), quizID, updates, send, closeSignals)
		}()
	}
	subscribe()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handleHostCommand(r.Context(), quizID, email, inbound, send); err != nil {
			send <- errMsg(err)
			continue
		}
		subscribe()
	}

	close(closeSignals)
	if cancel != nil {
		cancel()
		<-updatesDone
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) handleHostCommand(ctx context.Context, quizID, email string, inbound inboundMessage, send chan<- outboundMessage[any]) error {
	switch inbound.Type {
	case "start":
		return h.service.Start(ctx, email, quizID)
	case "advance":
		var payload advancePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		hasMore, err := h.service.Advance(ctx, email, quizID, payload.FromIndex)
		if err != nil {
			return err
		}
		send <- outboundMessage[any]{Type: "advanced", Payload: advanceResult{HasMore: hasMore}}
		return nil
	case "end":
		return h.service.End(ctx, email, quizID)
	case "restart":
		return h.service.Restart(ctx, email, quizID)
	case "share":
		var payload sharePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return h.service.Share(ctx, email, quizID, payload.Email)
	case "unshare":
		var payload sharePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return h.service.Unshare(ctx, email, quizID, payload.Email)
	default:
		return errUnsupportedType
	}
}

// startWriter funnels all outbound writes through one goroutine; gorilla
// connections do not allow concurrent writers.
func (h *WSHandler) startWriter(conn *websocket.Conn, send <-chan outboundMessage[any]) <-chan struct{} {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()
	return writerDone
}

// pumpUpdates forwards session snapshots and emits a sanitized question
// broadcast whenever a new question becomes active.
func (h *WSHandler) pumpUpdates(ctx context.Context, quizID string, updates <-chan app.SessionSnapshot, send chan<- outboundMessage[any], closeSignals <-chan struct{}) {
	lastQuestion := domain.NoQuestion
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			msgs := []outboundMessage[any]{{Type: "state", Payload: snap}}
			if snap.Quiz.Status == domain.StatusLive && snap.Quiz.CurrentQuestion != lastQuestion {
				if msg, ok := h.questionBroadcast(ctx, quizID, snap); ok {
					msgs = append(msgs, msg)
					lastQuestion = snap.Quiz.CurrentQuestion
				}
			} else if snap.Quiz.Status != domain.StatusLive {
				lastQuestion = domain.NoQuestion
			}
			for _, msg := range msgs {
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			}
		case <-closeSignals:
			return
		}
	}
}

func (h *WSHandler) questionBroadcast(ctx context.Context, quizID string, snap app.SessionSnapshot) (outboundMessage[any], bool) {
	question, err := h.service.ActiveQuestion(ctx, quizID)
	if err != nil {
		h.log.Warn("active question lookup failed", zap.String("quizId", quizID), zap.Error(err))
		return outboundMessage[any]{}, false
	}
	var startedAt time.Time
	if snap.Quiz.QuestionStartedAt != nil {
		startedAt = *snap.Quiz.QuestionStartedAt
	}
	return outboundMessage[any]{Type: "question", Payload: questionPayload{
		Index:     question.Position,
		Text:      question.Text,
		Options:   question.Options,
		StartedAt: startedAt,
		Seconds:   snap.Quiz.SecondsPerQuestion,
	}}, true
}
