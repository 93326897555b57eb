package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Conn is the transport handle handed to the dispatcher. Send only enqueues;
// a dedicated writer goroutine owns the socket writes.
type Conn struct {
	id string
	ws *websocket.Conn

	out       chan arenadto.Event
	closed    chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
	pingInterval time.Duration
}

func newConn(id string, c *websocket.Conn, buffer int, writeTimeout, pingInterval time.Duration) *Conn {
	return &Conn{
		id:           id,
		ws:           c,
		out:          make(chan arenadto.Event, buffer),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *Conn) ID() string { return c.id }

// Send never blocks. A peer that cannot keep up is disconnected rather than
// stalling the dispatcher.
func (c *Conn) Send(ev arenadto.Event) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- ev:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("conn_id", c.id), zap.String("type", ev.Type))
		c.close(websocket.StatusPolicyViolation, "slow consumer")
		return ErrSlowConsumer
	}
}

// close marks the handle dead at once. The close handshake can wait on an
// unresponsive peer, so it runs on its own goroutine; Send calls this from
// the dispatch loop.
func (c *Conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		go func() { _ = c.ws.Close(code, reason) }()
	})
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					obslog.L().Info("ws_ping_timeout", zap.String("conn_id", c.id))
					c.close(websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}
