package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

// ErrLookupFailed wraps a failed rating lookup. The entry is still stored with the default rating.
var ErrLookupFailed = errors.New("rating lookup failed")

// Identity is the stable user reference resolved at connect time.
type Identity struct {
	UserID      string
	DisplayName string
}

func (i Identity) Empty() bool { return strings.TrimSpace(i.UserID) == "" }

// Conn is a transport handle valid for the lifetime of one connection.
// Send must not block the caller.
type Conn interface {
	ID() string
	Send(ev arenadto.Event) error
}

// RatingLookup returns the stored rating for a user; found=false means "no rating yet".
type RatingLookup interface {
	Rating(ctx context.Context, userID string) (rating int, found bool, err error)
}

type Entry struct {
	Identity Identity
	Conn     Conn
	Rating   int
}

type Registry struct {
	lookup        RatingLookup
	defaultRating int

	entries map[string]*Entry
	order   []string
}

func NewRegistry(lookup RatingLookup, defaultRating int) *Registry {
	if defaultRating <= 0 {
		defaultRating = 1200
	}
	return &Registry{lookup: lookup, defaultRating: defaultRating, entries: make(map[string]*Entry)}
}

func (r *Registry) DefaultRating() int { return r.defaultRating }

// LookupRating calls the external store. This is the only suspending call in
// the registry; the dispatcher runs it off the event loop.
func (r *Registry) LookupRating(ctx context.Context, userID string) (int, error) {
	if r.lookup == nil {
		return r.defaultRating, nil
	}
	rating, found, err := r.lookup.Rating(ctx, userID)
	if err != nil {
		return r.defaultRating, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !found || rating <= 0 {
		return r.defaultRating, nil
	}
	return rating, nil
}

// Store inserts or replaces the entry for id without any external call.
func (r *Registry) Store(id Identity, conn Conn, rating int) *Entry {
	if _, exists := r.entries[id.UserID]; !exists {
		r.order = append(r.order, id.UserID)
	}
	e := &Entry{Identity: id, Conn: conn, Rating: rating}
	r.entries[id.UserID] = e
	obslog.L().Debug("presence_register", zap.String("user_id", id.UserID), zap.Int("rating", rating))
	return e
}

// Unregister removes the entry. Idempotent.
func (r *Registry) Unregister(userID string) {
	if _, ok := r.entries[userID]; !ok {
		return
	}
	delete(r.entries, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// UnregisterConn removes the entry only if it still belongs to conn, so a
// stale connection closing cannot evict a newer one for the same user.
func (r *Registry) UnregisterConn(userID string, conn Conn) bool {
	e, ok := r.entries[userID]
	if !ok || e.Conn == nil || conn == nil || e.Conn.ID() != conn.ID() {
		return false
	}
	r.Unregister(userID)
	return true
}

func (r *Registry) Get(userID string) (*Entry, bool) {
	e, ok := r.entries[userID]
	return e, ok
}

// List returns a snapshot in insertion order.
func (r *Registry) List() []Identity {
	out := make([]Identity, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, e.Identity)
		}
	}
	return out
}

// Conns returns every live transport handle, for broadcasts.
func (r *Registry) Conns() []Conn {
	out := make([]Conn, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok && e.Conn != nil {
			out = append(out, e.Conn)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.entries) }
