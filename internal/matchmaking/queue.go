package matchmaking

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/timecontrol"
	"go.uber.org/zap"
)

const (
	DefaultTolerance = 200
	ModeMatchmaking  = "matchmaking"
)

var ErrAlreadyQueued = errors.New("already queued for matchmaking")

type Entry struct {
	Identity    presence.Identity
	Conn        presence.Conn
	Rating      int
	TimeControl timecontrol.TimeControl
	IsRated     bool
	EnqueuedAt  time.Time
}

// Match is a pairing that has already been materialized into an active session.
type Match struct {
	Session *session.Session
	White   *Entry
	Black   *Entry
}

// Queue holds players waiting for automatic pairing in insertion order.
// Only the dispatcher loop calls it, so a match removes both entries before
// any other event can observe the queue.
type Queue struct {
	store     *session.Store
	presence  *presence.Registry
	clk       clockwork.Clock
	tolerance int
	coin      func() bool

	entries []*Entry
}

type Option func(*Queue)

func WithTolerance(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.tolerance = n
		}
	}
}

// WithCoin overrides the color coin flip; true gives the requester white.
func WithCoin(fn func() bool) Option {
	return func(q *Queue) { q.coin = fn }
}

func WithClock(clk clockwork.Clock) Option {
	return func(q *Queue) { q.clk = clk }
}

func NewQueue(store *session.Store, reg *presence.Registry, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		presence:  reg,
		clk:       clockwork.NewRealClock(),
		tolerance: DefaultTolerance,
		coin:      cryptoCoin,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts the identity at its presence rating and tries to pair it at once.
// A nil match with a nil error means the requester is now waiting.
func (q *Queue) Enqueue(id presence.Identity, conn presence.Conn, tc timecontrol.TimeControl, rated bool) (*Match, error) {
	if q.indexOf(id.UserID) >= 0 {
		return nil, ErrAlreadyQueued
	}
	rating := 0
	if q.presence != nil {
		rating = q.presence.DefaultRating()
		if e, ok := q.presence.Get(id.UserID); ok {
			rating = e.Rating
		}
	}
	q.entries = append(q.entries, &Entry{
		Identity:    id,
		Conn:        conn,
		Rating:      rating,
		TimeControl: tc,
		IsRated:     rated,
		EnqueuedAt:  q.clk.Now(),
	})
	obslog.L().Info("matchmaking_enqueue",
		zap.String("user_id", id.UserID),
		zap.Int("rating", rating),
		zap.String("time_control", tc.Name),
	)
	return q.TryMatch(id.UserID)
}

// TryMatch pairs userID with the closest-rated same-control entry inside the
// tolerance. Ties go to the earliest entry.
func (q *Queue) TryMatch(userID string) (*Match, error) {
	idx := q.indexOf(userID)
	if idx < 0 {
		return nil, nil
	}
	req := q.entries[idx]

	best := -1
	bestDiff := 0
	for i, cand := range q.entries {
		if i == idx || cand.TimeControl.Name != req.TimeControl.Name {
			continue
		}
		diff := abs(cand.Rating - req.Rating)
		if diff > q.tolerance {
			continue
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 {
		return nil, nil
	}
	opp := q.entries[best]

	white, black := req, opp
	if !q.coin() {
		white, black = opp, req
	}
	sess, err := q.store.CreateActive(
		session.Side{Identity: white.Identity, Conn: white.Conn, Rating: white.Rating},
		session.Side{Identity: black.Identity, Conn: black.Conn, Rating: black.Rating},
		session.Config{Mode: ModeMatchmaking, TimeControl: req.TimeControl, IsRated: req.IsRated && opp.IsRated},
	)
	if err != nil {
		return nil, err
	}
	q.remove(req.Identity.UserID)
	q.remove(opp.Identity.UserID)
	obslog.L().Info("match_found",
		zap.String("session_id", sess.ID),
		zap.String("white_id", white.Identity.UserID),
		zap.String("black_id", black.Identity.UserID),
		zap.Int("rating_diff", bestDiff),
	)
	return &Match{Session: sess, White: white, Black: black}, nil
}

// Cancel removes the entry if present.
func (q *Queue) Cancel(userID string) bool { return q.remove(userID) }

func (q *Queue) DequeueOnDisconnect(userID string) bool { return q.remove(userID) }

// Rebind points a waiting entry at a newer connection for the same user.
func (q *Queue) Rebind(userID string, conn presence.Conn) bool {
	i := q.indexOf(userID)
	if i < 0 {
		return false
	}
	q.entries[i].Conn = conn
	return true
}

func (q *Queue) Contains(userID string) bool { return q.indexOf(userID) >= 0 }

func (q *Queue) Len() int { return len(q.entries) }

func (q *Queue) indexOf(userID string) int {
	for i, e := range q.entries {
		if e.Identity.UserID == userID {
			return i
		}
	}
	return -1
}

func (q *Queue) remove(userID string) bool {
	i := q.indexOf(userID)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func cryptoCoin() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	return err != nil || n.Int64() == 0
}
