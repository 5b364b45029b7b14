package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Submit reasons carried by "submit" messages.
const (
	SubmitManual = "manual"
	SubmitTimer  = "timer"
)

// WSHandler serves the live attempt channel: answer autosave while the attempt
// runs, and submission either from the learner or from the deadline timer.
type WSHandler struct {
	attempts *app.AttemptService
	upgrader websocket.Upgrader
	log      *zap.Logger
	// grace is added to the deadline before the server submits on its own.
	grace time.Duration
}

func NewWSHandler(attempts *app.AttemptService, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		attempts: attempts,
		log:      log,
		grace:    2 * time.Second,
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
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

type submitPayload struct {
	Answers domain.Answers `json:"answers,omitempty"`
	Reason  string         `json:"reason"`
}

type savedPayload struct {
	QuestionID string `json:"questionId"`
}

type resultPayload struct {
	Reason string        `json:"reason"`
	Result domain.Result `json:"result"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	_, code := statusFor(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}}
}

// ServeWS upgrades the request and binds the socket to one attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	caller := callerFrom(r)
	if attemptID == "" || caller.UserID == "" {
		http.Error(w, "missing attemptId or userId", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	current, err := h.attempts.GetResult(ctx, caller, attemptID)
	if err != nil {
		status, _ := statusFor(err)
		http.Error(w, err.Error(), status)
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
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", zap.String("attempt_id", attemptID), zap.Error(err))
				return
			}
		}
	}()

	submit := func(ctx context.Context, payload submitPayload) outboundMessage[any] {
		result, err := h.attempts.SubmitAttempt(ctx, caller, attemptID, payload.Answers)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "result", Payload: resultPayload{Reason: payload.Reason, Result: result}}
	}

	send <- outboundMessage[any]{Type: "attempt", Payload: current}

	// The deadline timer races manual submits; the attempt's status guard
	// decides which one locks the answers.
	go func() {
		defer close(timerDone)
		if current.Status != domain.StatusStarted {
			return
		}
		timer := time.NewTimer(time.Until(current.Deadline) + h.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			msg := submit(ctx, submitPayload{Reason: SubmitTimer})
			select {
			case send <- msg:
			case <-closeSignals:
			}
		case <-closeSignals:
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}}
				continue
			}
			if err := h.attempts.SaveAnswer(ctx, caller, attemptID, payload.QuestionID, payload.Value); err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage[any]{Type: "saved", Payload: savedPayload{QuestionID: payload.QuestionID}}
		case "submit":
			var payload submitPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid submit payload"}}
					continue
				}
			}
			if payload.Reason != SubmitTimer {
				payload.Reason = SubmitManual
			}
			send <- submit(ctx, payload)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}
