package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bird-quiz-service/internal/app"
	"bird-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(service *app.QuizService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
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

// ServeWS upgrades HTTP requests to websockets and attaches the connection to a quiz session.
// A new quiz is started with ?count=N; an existing one is resumed with ?sessionId=ID.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")
	countRaw := r.URL.Query().Get("count")
	if sessionID == "" && countRaw == "" {
		http.Error(w, "missing sessionId or count", http.StatusBadRequest)
		return
	}

	var (
		session *app.Session
		err     error
	)
	if sessionID != "" {
		session, err = h.service.Session(ctx, sessionID)
	} else {
		count, convErr := strconv.Atoi(countRaw)
		if convErr != nil {
			http.Error(w, "count must be a number", http.StatusBadRequest)
			return
		}
		session, err = h.service.Start(ctx, count)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().Str("session", session.ID()).Logger()
	view := newConnView(conn, logger)
	defer view.close()

	view.send("session", sessionPayload{SessionID: session.ID(), Resumed: sessionID != ""})
	session.Attach(view)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var answer domain.Answer
			if err := json.Unmarshal(inbound.Payload, &answer); err != nil {
				view.send("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			res, err := session.Submit(ctx, answer)
			if err != nil {
				view.send("error", errorPayload{Message: err.Error()})
				continue
			}
			view.send("answerResult", res)
		case "hint":
			if _, err := session.RevealHint(ctx); err != nil {
				view.send("error", errorPayload{Message: err.Error()})
			}
		case "next":
			if err := session.Next(); err != nil {
				view.send("error", errorPayload{Message: err.Error()})
			}
		case "finish":
			session.Finish()
			h.service.Release(ctx, session)
		default:
			view.send("error", errorPayload{Message: "unsupported message type"})
		}
	}

	// the request context ends with the handler; saving must outlive the read loop
	saveCtx := context.WithoutCancel(ctx)
	if err := h.service.Suspend(saveCtx, session, view); err != nil {
		logger.Warn().Err(err).Msg("session state not saved")
	}
	h.service.Release(saveCtx, session)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrCatalogNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuestionCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
