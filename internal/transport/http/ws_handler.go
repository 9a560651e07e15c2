package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
)

// WSHandler exposes a running exam session to the candidate UI shell over a
// websocket: navigation actions flow in, question state and deadline ticks
// flow out.
type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.SessionService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option int `json:"option"`
}

type exitPayload struct {
	Confirmed bool `json:"confirmed"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	// Required marks the "answer or skip before advancing" gate so the UI
	// can highlight the question instead of showing a generic failure.
	Required bool `json:"required,omitempty"`
	// Retryable marks an explicit-finish failure the candidate may retry.
	Retryable bool `json:"retryable,omitempty"`
}

type questionView struct {
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Question domain.Question `json:"question"`
	State    string          `json:"state"`
	Option   *int            `json:"option,omitempty"`
}

type tickPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type finalizedPayload struct {
	Reason string             `json:"reason"`
	Counts domain.SheetCounts `json:"counts"`
}

type exitResult struct {
	Allowed bool `json:"allowed"`
}

// ServeWS upgrades the request and runs the candidate's session until the
// socket closes or the session finalizes and the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	examName := r.URL.Query().Get("exam")
	candidateID := r.URL.Query().Get("candidate")
	if examName == "" || candidateID == "" {
		http.Error(w, "missing exam or candidate", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, err := h.service.Start(r.Context(), examName, candidateID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	events, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Warn().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				msg := eventMessage(event, session)
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- questionMessage(session)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handle(r, session, inbound, send)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(r *http.Request, session *app.Session, inbound inboundMessage, send chan<- outboundMessage[any]) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid answer payload", nil)
			return
		}
		if err := session.RecordAnswer(payload.Option); err != nil {
			send <- errorMessage(err.Error(), err)
			return
		}
		send <- questionMessage(session)
	case "skip":
		finished, err := session.RecordSkip(r.Context())
		if err != nil {
			send <- errorMessage(err.Error(), err)
			return
		}
		if !finished {
			send <- questionMessage(session)
		}
	case "next":
		finished, err := session.Next(r.Context())
		if err != nil {
			send <- errorMessage(err.Error(), err)
			return
		}
		if !finished {
			send <- questionMessage(session)
		}
	case "previous":
		if err := session.Previous(); err != nil {
			send <- errorMessage(err.Error(), err)
			return
		}
		send <- questionMessage(session)
	case "finish":
		if err := session.FinishExplicit(r.Context()); err != nil {
			msg := errorMessage(err.Error(), err)
			if !errors.Is(err, domain.ErrSessionFinalized) {
				payload := msg.Payload.(errorPayload)
				payload.Retryable = true
				msg.Payload = payload
			}
			send <- msg
		}
	case "exit":
		var payload exitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid exit payload", nil)
			return
		}
		send <- outboundMessage[any]{Type: "exitResult", Payload: exitResult{
			Allowed: session.RequestExit(payload.Confirmed),
		}}
	default:
		send <- errorMessage("unsupported message type", nil)
	}
}

func eventMessage(event app.Event, session *app.Session) outboundMessage[any] {
	switch event.Type {
	case app.EventFinalized:
		return outboundMessage[any]{Type: "finalized", Payload: finalizedPayload{
			Reason: string(event.Reason),
			Counts: session.Counts(),
		}}
	default:
		return outboundMessage[any]{Type: "tick", Payload: tickPayload{
			RemainingSeconds: int(event.Remaining / time.Second),
		}}
	}
}

func questionMessage(session *app.Session) outboundMessage[any] {
	q, index, record := session.Current()
	view := questionView{
		Index:    index,
		Total:    session.QuestionCount(),
		Question: q,
		State:    record.State.String(),
	}
	if record.State == domain.Answered {
		option := record.Option
		view.Option = &option
	}
	return outboundMessage[any]{Type: "question", Payload: view}
}

func errorMessage(message string, err error) outboundMessage[any] {
	payload := errorPayload{Message: message}
	if errors.Is(err, domain.ErrAnswerRequired) {
		payload.Required = true
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}
