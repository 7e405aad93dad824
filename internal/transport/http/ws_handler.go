package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

const (
	pingPeriod     = 25 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4096
)

type WSHandler struct {
	registry *app.Registry
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

func NewWSHandler(registry *app.Registry, perSecond float64, burst int) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limit: rate.Limit(perSecond),
		burst: burst,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createRoomPayload struct {
	Capacity    int    `json:"capacity"`
	Subject     string `json:"subject"`
	Mode        string `json:"mode"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

type joinRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type answerPayload struct {
	RoomID      string `json:"roomId"`
	AnswerIndex *int   `json:"answerIndex"`
}

// conn is one connected player.
type conn struct {
	id      string
	sink    *connSink
	limiter *rate.Limiter
	log     zerolog.Logger
}

// ServeWS upgrades HTTP requests to websockets and routes player messages to the registry.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	c := &conn{
		id:      uuid.NewString(),
		sink:    newConnSink(sinkBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	c.log = log.With().Str("player", c.id).Logger()
	c.log.Debug().Str("remote", r.RemoteAddr).Msg("player connected")

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	writerDone := make(chan struct{})
	go h.writeLoop(ws, c, writerDone)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if !c.limiter.Allow() {
			c.log.Debug().Msg("inbound message throttled")
			continue
		}
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			c.log.Debug().Err(err).Msg("malformed message dropped")
			continue
		}
		h.dispatch(r.Context(), c, inbound)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.registry.Disconnect(ctx, c.id)
	c.sink.close()
	<-writerDone
	c.log.Debug().Msg("player disconnected")
}

// writeLoop is the only writer on ws. A write failure closes the socket so the read loop exits too.
func (h *WSHandler) writeLoop(ws *websocket.Conn, c *conn, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-c.sink.out:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("ws write failed")
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		case <-c.sink.done:
			return
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *conn, msg inboundMessage) {
	switch msg.Type {
	case "createRoom", "quickMatch":
		var p createRoomPayload
		if !decode(c, msg, &p) {
			return
		}
		mode, err := domain.ParseMode(p.Mode)
		if err != nil {
			h.reject(c, msg.Type, err)
			return
		}
		spec := app.RoomSpec{Capacity: p.Capacity, Subject: p.Subject, Mode: mode}
		player := domain.Player{ID: c.id, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
		if msg.Type == "createRoom" {
			_, err = h.registry.CreateRoom(ctx, spec, player, c.sink)
		} else {
			_, err = h.registry.QuickMatch(ctx, spec, player, c.sink)
		}
		if err != nil {
			h.reject(c, msg.Type, err)
		}
	case "joinRoom":
		var p joinRoomPayload
		if !decode(c, msg, &p) {
			return
		}
		player := domain.Player{ID: c.id, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
		if _, err := h.registry.JoinRoom(ctx, p.RoomID, player, c.sink); err != nil {
			h.reject(c, msg.Type, err)
		}
	case "playerReady":
		var p roomPayload
		if decode(c, msg, &p) {
			h.registry.Ready(p.RoomID, c.id)
		}
	case "submitAnswer":
		var p answerPayload
		if !decode(c, msg, &p) || p.AnswerIndex == nil {
			return
		}
		h.registry.SubmitAnswer(p.RoomID, c.id, *p.AnswerIndex)
	case "leaveRoom":
		var p roomPayload
		if decode(c, msg, &p) {
			h.registry.RemovePlayer(ctx, p.RoomID, c.id)
		}
	default:
		c.log.Debug().Str("type", msg.Type).Msg("unsupported message dropped")
	}
}

// reject answers a failed create or join with errorMsg. Unexpected failures are logged and the
// client gets a generic message.
func (h *WSHandler) reject(c *conn, op string, err error) {
	message := err.Error()
	if !app.IsValidation(err) {
		if !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Str("op", op).Msg("request failed")
		}
		message = "internal error"
	}
	c.sink.Send(domain.Event{Type: domain.EventError, Payload: domain.ErrorMessage{Message: message}})
}

func decode(c *conn, msg inboundMessage, into any) bool {
	if len(msg.Payload) == 0 {
		c.log.Debug().Str("type", msg.Type).Msg("message without payload dropped")
		return false
	}
	if err := json.Unmarshal(msg.Payload, into); err != nil {
		c.log.Debug().Err(err).Str("type", msg.Type).Msg("malformed payload dropped")
		return false
	}
	return true
}
