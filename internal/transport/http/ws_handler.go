package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log logrus.FieldLogger) *WSHandler {
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

// answerPayload carries exactly one of index (multiple-choice, image-identify),
// text (fill-blank) or words (sentence-builder).
type answerPayload struct {
	Index *int     `json:"index"`
	Text  *string  `json:"text"`
	Words []string `json:"words"`
}

func (p answerPayload) answer() (domain.Answer, error) {
	switch {
	case p.Index != nil:
		return domain.ChoiceAnswer{Index: *p.Index}, nil
	case p.Text != nil:
		return domain.TextAnswer{Text: *p.Text}, nil
	case p.Words != nil:
		return domain.SequenceAnswer{Words: p.Words}, nil
	}
	return nil, errors.New("answer needs index, text or words")
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Code: errorCode(err)}}
}

// ServeWS upgrades the request and runs one quiz session over the socket. Session
// parameters come from the query string; playerId is required except for guests.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	playerID := query.Get("playerId")
	params := app.ParseSessionParams(query)
	if playerID == "" && params.Mode != "guest" {
		http.Error(w, "missing playerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, err := h.service.Start(r.Context(), playerID, params)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	log := h.log.WithField("session_id", session.ID())

	updates, cancel, err := h.service.Subscribe(r.Context(), session.ID())
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()
	defer session.Quit()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var opErr error
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(errorMessage(errors.New("invalid answer payload")))
				continue
			}
			answer, err := payload.answer()
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			_, opErr = session.Submit(r.Context(), answer)
		case "pause":
			opErr = session.Pause()
		case "resume":
			opErr = session.Resume()
		case "focus":
			_, opErr = session.UseFocusToken(r.Context())
		case "quit":
			session.Quit()
		default:
			opErr = errors.New("unsupported message type")
		}
		if opErr != nil {
			reply(errorMessage(opErr))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
