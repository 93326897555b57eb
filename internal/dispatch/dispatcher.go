// Package dispatch is the single authoritative entry point for client events.
//
// Every mutation of the session store, matchmaking queue, clock engine and
// presence registry happens on one goroutine (Run). Transports and HTTP
// handlers post work into that loop. The only work done off the loop is the
// connect-time rating lookup and outcome sink delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/outcome"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/timecontrol"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

const (
	defaultInboxSize     = 256
	defaultLookupTimeout = 3 * time.Second
	defaultSinkTimeout   = 15 * time.Second
	defaultMode          = "casual"
)

var ErrStopped = errors.New("dispatcher stopped")

type Deps struct {
	Catalog  *timecontrol.Catalog
	Store    *session.Store
	Presence *presence.Registry
	Queue    *matchmaking.Queue
	// Sink may be nil; completed sessions are then only logged.
	Sink  outcome.Sink
	Clock clockwork.Clock
	// Messages may be nil; error events then carry the built-in text.
	Messages *msgcat.Catalog

	LookupTimeout time.Duration
	SinkTimeout   time.Duration
	InboxSize     int
}

type Dispatcher struct {
	catalog  *timecontrol.Catalog
	store    *session.Store
	clocks   *clock.Engine
	presence *presence.Registry
	queue    *matchmaking.Queue
	sink     outcome.Sink
	clk      clockwork.Clock
	messages *msgcat.Catalog

	lookupTimeout time.Duration
	sinkTimeout   time.Duration

	inbox   chan func()
	stopped chan struct{}
	runOnce sync.Once

	lookups sync.WaitGroup
	sinks   sync.WaitGroup
}

func New(d Deps) (*Dispatcher, error) {
	if d.Catalog == nil || d.Store == nil || d.Presence == nil || d.Queue == nil {
		return nil, fmt.Errorf("dispatch: catalog, store, presence and queue are required")
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.LookupTimeout <= 0 {
		d.LookupTimeout = defaultLookupTimeout
	}
	if d.SinkTimeout <= 0 {
		d.SinkTimeout = defaultSinkTimeout
	}
	if d.InboxSize <= 0 {
		d.InboxSize = defaultInboxSize
	}
	return &Dispatcher{
		catalog:       d.Catalog,
		store:         d.Store,
		clocks:        d.Store.Clocks(),
		presence:      d.Presence,
		queue:         d.Queue,
		sink:          d.Sink,
		clk:           d.Clock,
		messages:      d.Messages,
		lookupTimeout: d.LookupTimeout,
		sinkTimeout:   d.SinkTimeout,
		inbox:         make(chan func(), d.InboxSize),
		stopped:       make(chan struct{}),
	}, nil
}

// Run processes posted work until ctx is cancelled. It must be called once.
func (d *Dispatcher) Run(ctx context.Context) {
	started := false
	d.runOnce.Do(func() { started = true })
	if !started {
		obslog.L().Warn("dispatch_run_twice")
		return
	}
	defer close(d.stopped)
	obslog.L().Info("dispatch_started")
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("dispatch_stopped", zap.Int("sessions", d.store.Len()), zap.Int("online", d.presence.Len()))
			return
		case fn := <-d.inbox:
			d.safely(fn)
		}
	}
}

// Wait blocks until in-flight rating lookups and sink deliveries finish.
func (d *Dispatcher) Wait() {
	d.lookups.Wait()
	d.sinks.Wait()
}

func (d *Dispatcher) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("dispatch_panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

func (d *Dispatcher) post(ctx context.Context, fn func()) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-d.stopped:
		return false
	default:
	}
	select {
	case d.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	case <-d.stopped:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (d *Dispatcher) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !d.post(ctx, func() { defer close(done); fn() }) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}
}

// Connect registers an authenticated connection. The entry is visible at the
// default rating until the lookup finishes; events in between see that rating.
func (d *Dispatcher) Connect(ctx context.Context, conn presence.Conn, id presence.Identity) {
	d.post(ctx, func() { d.onConnect(conn, id) })
}

// Handle dispatches one inbound frame. Frames from one connection must be
// handed over in order by a single reader.
func (d *Dispatcher) Handle(ctx context.Context, conn presence.Conn, id presence.Identity, env arenadto.Envelope) {
	d.post(ctx, func() { d.handle(conn, id, env) })
}

// Disconnect is the transport-level disconnect event.
func (d *Dispatcher) Disconnect(ctx context.Context, conn presence.Conn, id presence.Identity) {
	d.post(ctx, func() { d.onDisconnect(conn, id) })
}

// ListRooms returns the waiting rooms for HTTP callers.
func (d *Dispatcher) ListRooms(ctx context.Context) ([]arenadto.Session, error) {
	var out []arenadto.Session
	err := d.call(ctx, func() { out = d.waitingRooms() })
	return out, err
}

// AddTime adjusts one side's clock of an active session and pushes the new
// reading to both sides.
func (d *Dispatcher) AddTime(ctx context.Context, sessionID string, side clock.Color, seconds int) (arenadto.Clock, error) {
	if !side.Valid() {
		return arenadto.Clock{}, errBadPayload
	}
	var (
		out    arenadto.Clock
		addErr error
	)
	err := d.call(ctx, func() {
		sess, ok := d.store.Get(sessionID)
		if !ok || sess.Status != session.StatusActive {
			addErr = session.ErrNotFound
			return
		}
		d.clocks.AddTime(sessionID, side, seconds)
		r, _ := d.clocks.Read(sessionID)
		out = clockDTO(r)
		obslog.L().Info("clock_add_time",
			zap.String("session_id", sessionID),
			zap.String("side", string(side)),
			zap.Int("seconds", seconds),
		)
		d.sendSides(sess, arenadto.Event{Type: arenadto.EvClock, Payload: out})
	})
	if err != nil {
		return arenadto.Clock{}, err
	}
	return out, addErr
}

// Stats is a loop-consistent snapshot for health reporting.
type Stats struct {
	Online   int `json:"online"`
	Sessions int `json:"sessions"`
	Queued   int `json:"queued"`
}

func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := d.call(ctx, func() {
		st = Stats{Online: d.presence.Len(), Sessions: d.store.Len(), Queued: d.queue.Len()}
	})
	return st, err
}

func (d *Dispatcher) onConnect(conn presence.Conn, id presence.Identity) {
	if id.Empty() {
		d.sendError(conn, errUnauthenticated)
		return
	}
	entry := d.presence.Store(id, conn, d.presence.DefaultRating())
	if sess, ok := d.store.FindByIdentity(id.UserID); ok {
		if c, ok := sess.ColorOf(id.UserID); ok {
			sess.Seat(c).Conn = conn
		}
	}
	d.queue.Rebind(id.UserID, conn)
	obslog.L().Info("presence_connect", zap.String("user_id", id.UserID), zap.String("conn_id", conn.ID()))
	d.broadcastOnline()

	d.lookups.Add(1)
	go func() {
		defer d.lookups.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.lookupTimeout)
		defer cancel()
		rating, err := d.presence.LookupRating(ctx, id.UserID)
		d.post(context.Background(), func() { d.onRating(entry, conn, id, rating, err) })
	}()
}

func (d *Dispatcher) onRating(entry *presence.Entry, conn presence.Conn, id presence.Identity, rating int, err error) {
	current, ok := d.presence.Get(id.UserID)
	if !ok || current != entry {
		return
	}
	current.Rating = rating
	if err != nil {
		obslog.L().Warn("rating_lookup_failed", zap.String("user_id", id.UserID), zap.Error(err))
		d.sendError(conn, err)
		return
	}
	obslog.L().Debug("rating_resolved", zap.String("user_id", id.UserID), zap.Int("rating", rating))
}

func (d *Dispatcher) onDisconnect(conn presence.Conn, id presence.Identity) {
	if id.Empty() {
		return
	}
	if !d.presence.UnregisterConn(id.UserID, conn) {
		obslog.L().Debug("presence_disconnect_stale", zap.String("user_id", id.UserID), zap.String("conn_id", conn.ID()))
		return
	}
	d.queue.DequeueOnDisconnect(id.UserID)
	obslog.L().Info("presence_disconnect", zap.String("user_id", id.UserID))

	if sess, ok := d.store.FindByIdentity(id.UserID); ok {
		switch sess.Status {
		case session.StatusWaiting:
			d.store.Remove(sess.ID)
			d.broadcastRooms()
		case session.StatusActive:
			color, _ := sess.ColorOf(id.UserID)
			if opp := sess.Seat(color.Opponent()); opp != nil {
				d.send(opp.Conn, arenadto.Event{Type: arenadto.EvOpponentDisconnected, Payload: arenadto.Notice{SessionID: sess.ID}})
			}
			d.complete(sess, session.WinFor(sess, color.Opponent(), session.ReasonDisconnect))
		}
	}
	d.broadcastOnline()
}

func (d *Dispatcher) complete(sess *session.Session, out session.Outcome) {
	final, err := d.store.Complete(sess.ID, out)
	if err != nil {
		obslog.L().Warn("session_complete_failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	d.sendSides(final, arenadto.Event{Type: arenadto.EvCompleted, Payload: completedDTO(final)})
	d.publish(outcome.FromSession(final, d.clk.Now()))
}

func (d *Dispatcher) publish(rec outcome.Record) {
	if d.sink == nil {
		return
	}
	d.sinks.Add(1)
	go func() {
		defer d.sinks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
		defer cancel()
		if err := d.sink.Publish(ctx, rec); err != nil {
			obslog.L().Error("outcome_sink_error", zap.String("session_id", rec.SessionID), zap.Error(err))
			return
		}
		obslog.L().Debug("outcome_sink_ok", zap.String("session_id", rec.SessionID))
	}()
}
