package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/attempt"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// eventBuffer is the per-connection backlog before events are dropped.
const eventBuffer = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt events and accepts attempt actions.
type WSHandler struct {
	store    *service.SessionStore
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(store *service.SessionStore, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		store:    store,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempt/stream
// Pushes tick, warning, submitted and violation events; accepts answer,
// environment, submit and ping actions. Closing the socket does not end the attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	events, unsubscribe := h.store.Events().Subscribe(eventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.log.Info().Msg("Client connected")

	if snap := h.store.Current(); snap.Attempt != nil {
		_ = conn.WriteTyped(ws.TimerResponse{
			Event:     ws.EventTick,
			AttemptID: snap.Attempt.ID,
			Timer:     ws.NewTimer(snap.Remaining, h.store.WarnAt()),
		})
	}

	go h.forward(ctx, conn, events)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				h.log.Debug().Msg("Connection closed")
			}
			return
		}
		h.handleAction(ctx, conn, &msg)
	}
}

// forward writes hub events to the socket until ctx ends.
func (h *WSHandler) forward(ctx context.Context, conn *ws.Conn, events <-chan attempt.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if msg, ok := eventMessage(ev, h.store.WarnAt()); ok {
				if err := conn.WriteTyped(msg); err != nil {
					h.log.Debug().Err(err).Msg("Event write failed")
					return
				}
			}
		}
	}
}

func (h *WSHandler) handleAction(ctx context.Context, conn *ws.Conn, msg *ws.RequestPayload) {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		err = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	case ws.ActionAnswer:
		err = h.handleAnswer(conn, msg)
	case ws.ActionEnvironment:
		err = h.handleEnvironment(msg)
	case ws.ActionSubmit:
		// The submitted event reaches the client through the hub.
		_, err = h.store.SubmitExam(ctx)
	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return
	}
	if err != nil {
		_, code := response.FromError(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, msg *ws.RequestPayload) error {
	if msg.QuestionID == "" {
		return conn.WriteError(string(response.ErrValidation), "question_id is required")
	}
	var err error
	if msg.Answer == nil {
		err = h.store.ClearAnswer(msg.QuestionID)
	} else {
		err = h.store.RecordAnswer(msg.QuestionID, *msg.Answer)
	}
	if err != nil {
		return err
	}
	return conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

func (h *WSHandler) handleEnvironment(msg *ws.RequestPayload) error {
	if msg.Fullscreen != nil {
		if err := h.store.ReportFullscreen(*msg.Fullscreen); err != nil {
			return err
		}
	}
	if msg.Visible != nil {
		return h.store.ReportVisibility(*msg.Visible)
	}
	return nil
}

// eventMessage maps a hub event onto its wire message.
func eventMessage(ev attempt.Event, warnAt time.Duration) (interface{}, bool) {
	switch ev.Type {
	case attempt.EventStarted:
		return ws.StartedResponse{
			Event:     ws.EventStarted,
			AttemptID: ev.AttemptID,
			ExamID:    ev.ExamID,
			Timer:     ws.NewTimer(ev.Remaining, warnAt),
		}, true
	case attempt.EventTick, attempt.EventWarning:
		event := ws.EventTick
		if ev.Type == attempt.EventWarning {
			event = ws.EventWarning
		}
		return ws.TimerResponse{Event: event, AttemptID: ev.AttemptID, Timer: ws.NewTimer(ev.Remaining, warnAt)}, true
	case attempt.EventSubmitted:
		msg := ws.SubmittedResponse{Event: ws.EventSubmitted, AttemptID: ev.AttemptID, ExamID: ev.ExamID}
		if ev.Attempt != nil {
			msg.SubmitReason = ev.Attempt.SubmitReason
			if ev.Attempt.Score != nil {
				msg.Score = *ev.Attempt.Score
			}
		}
		return msg, true
	case attempt.EventAbandoned:
		return ws.AbandonedResponse{Event: ws.EventAbandoned, AttemptID: ev.AttemptID}, true
	case attempt.EventViolation:
		if ev.Violation == nil {
			return nil, false
		}
		return ws.ViolationResponse{
			Event:     ws.EventViolation,
			AttemptID: ev.AttemptID,
			Kind:      ev.Violation.Kind,
			Timestamp: ev.Violation.Timestamp,
		}, true
	default:
		return nil, false
	}
}
