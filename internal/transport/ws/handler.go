// Package ws carries arena events over websockets and exposes the HTTP surface.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/dispatch"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	readLimit           = 64 << 10
)

type Verifier interface {
	Verify(token string) (presence.Identity, error)
}

type Dispatcher interface {
	Connect(ctx context.Context, conn presence.Conn, id presence.Identity)
	Handle(ctx context.Context, conn presence.Conn, id presence.Identity, env arenadto.Envelope)
	Disconnect(ctx context.Context, conn presence.Conn, id presence.Identity)
	ListRooms(ctx context.Context) ([]arenadto.Session, error)
	AddTime(ctx context.Context, sessionID string, side clock.Color, seconds int) (arenadto.Clock, error)
	Stats(ctx context.Context) (dispatch.Stats, error)
}

type HandlerConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	// BaseContext bounds every connection; cancelling it closes them all.
	BaseContext context.Context
}

// Handler upgrades /ws requests. A connection with a missing or invalid token
// stays open; every event it sends is answered with Unauthenticated.
type Handler struct {
	verifier Verifier
	disp     Dispatcher
	cfg      HandlerConfig
}

func NewHandler(v Verifier, d Dispatcher, cfg HandlerConfig) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Handler{verifier: v, disp: d, cfg: cfg}
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.cfg.AllowedOrigins
	return opts
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		obslog.L().Info("ws_unauthenticated", zap.String("remote", r.RemoteAddr), zap.Error(err))
		id = presence.Identity{}
	}

	c, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(h.cfg.BaseContext)
	defer cancel()
	conn := newConn(uuid.NewString(), c, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.cfg.PingInterval)
	go conn.writeLoop(ctx)
	go conn.pingLoop(ctx)
	obslog.L().Info("ws_open", zap.String("conn_id", conn.ID()), zap.String("user_id", id.UserID))

	h.disp.Connect(ctx, conn, id)
	h.readLoop(ctx, conn, id)

	h.disp.Disconnect(context.Background(), conn, id)
	if ctx.Err() != nil {
		conn.close(websocket.StatusGoingAway, "server shutdown")
	} else {
		conn.close(websocket.StatusNormalClosure, "bye")
	}
	obslog.L().Info("ws_close", zap.String("conn_id", conn.ID()), zap.String("user_id", id.UserID))
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, id presence.Identity) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				obslog.L().Debug("ws_read_end", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		var env arenadto.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			_ = conn.Send(arenadto.Event{Type: arenadto.EvError, Payload: arenadto.DomainError{
				Code:    arenadto.CodeBadRequest,
				Message: "frame must be {\"type\":...,\"payload\":...}",
			}})
			continue
		}
		h.disp.Handle(ctx, conn, id, env)
	}
}
