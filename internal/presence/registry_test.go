package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

type stubConn struct{ id string }

func (c stubConn) ID() string                { return c.id }
func (c stubConn) Send(arenadto.Event) error { return nil }

type stubLookup struct {
	ratings map[string]int
	err     error
}

func (s stubLookup) Rating(_ context.Context, userID string) (int, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	r, ok := s.ratings[userID]
	return r, ok, nil
}

func TestLookupOrDefault(t *testing.T) {
	r := NewRegistry(stubLookup{ratings: map[string]int{"u1": 1500}}, 1200)
	ctx := context.Background()

	rating, err := r.LookupRating(ctx, "u1")
	if err != nil || rating != 1500 {
		t.Fatalf("LookupRating u1: rating=%d err=%v", rating, err)
	}
	r.Store(Identity{UserID: "u1", DisplayName: "Alice"}, stubConn{"c1"}, rating)
	rating, err = r.LookupRating(ctx, "u2")
	if err != nil || rating != 1200 {
		t.Fatalf("LookupRating u2: rating=%d err=%v", rating, err)
	}
	got, ok := r.Get("u1")
	if !ok || got.Identity.DisplayName != "Alice" {
		t.Fatalf("Get u1 = %+v", got)
	}
}

func TestLookupFailureDegrades(t *testing.T) {
	r := NewRegistry(stubLookup{err: errors.New("redis down")}, 1200)
	rating, err := r.LookupRating(context.Background(), "u1")
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
	if rating != 1200 {
		t.Fatalf("rating = %d, want default", rating)
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry(nil, 0)
	for _, id := range []string{"c", "a", "b"} {
		r.Store(Identity{UserID: id, DisplayName: id}, stubConn{id}, 1200)
	}
	r.Unregister("a")
	r.Unregister("a")
	r.Store(Identity{UserID: "c", DisplayName: "c2"}, stubConn{"c-2"}, 1300)

	list := r.List()
	if len(list) != 2 || list[0].UserID != "c" || list[1].UserID != "b" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].DisplayName != "c2" {
		t.Fatalf("replacement not visible: %+v", list[0])
	}
}

func TestUnregisterConnIgnoresStaleHandle(t *testing.T) {
	r := NewRegistry(nil, 1200)
	r.Store(Identity{UserID: "u1"}, stubConn{"new"}, 1200)
	if r.UnregisterConn("u1", stubConn{"old"}) {
		t.Fatalf("stale conn evicted the live entry")
	}
	if !r.UnregisterConn("u1", stubConn{"new"}) {
		t.Fatalf("live conn not removed")
	}
}
