package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/timecontrol"
)

var blitz = timecontrol.TimeControl{Name: "blitz", InitialSeconds: 180, IncrementSeconds: 2}

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	n := 0
	s := NewStore(clock.NewEngine(fc), fc, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("room-%d", n)
	}))
	return s, fc
}

func side(id string) Side {
	return Side{Identity: presence.Identity{UserID: id, DisplayName: id}, Rating: 1200}
}

func TestCreateJoinActivates(t *testing.T) {
	s, fc := newTestStore(t)
	sess, err := s.CreateWaiting(side("a"), Config{Mode: "casual", TimeControl: blitz})
	if err != nil {
		t.Fatalf("CreateWaiting: %v", err)
	}
	if sess.Status != StatusWaiting || sess.Black != nil {
		t.Fatalf("unexpected waiting session: %+v", sess)
	}
	if r, _ := s.Clocks().Read(sess.ID); r.Running {
		t.Fatalf("clock should not run before join")
	}

	fc.Advance(5 * time.Second)
	joined, err := s.Join(sess.ID, side("b"))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.Status != StatusActive || joined.White.Identity.Empty() || joined.Black.Identity.Empty() {
		t.Fatalf("active session missing a side: %+v", joined)
	}
	if r, _ := s.Clocks().Read(sess.ID); !r.Running || r.RemainingWhite != 180_000 {
		t.Fatalf("clock after join = %+v", r)
	}
}

func TestJoinErrors(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Join("missing", side("b")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	sess, _ := s.CreateWaiting(side("a"), Config{TimeControl: blitz})
	if _, err := s.Join(sess.ID, side("a")); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("self join: expected ErrNotJoinable, got %v", err)
	}
	if _, err := s.Join(sess.ID, side("b")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := s.Join(sess.ID, side("c")); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("third join: expected ErrNotJoinable, got %v", err)
	}
}

func TestFindByIdentityAndComplete(t *testing.T) {
	s, _ := newTestStore(t)
	sess, _ := s.CreateActive(side("w"), side("b"), Config{TimeControl: blitz})

	got, ok := s.FindByIdentity("b")
	if !ok || got.ID != sess.ID {
		t.Fatalf("FindByIdentity(b) = %v, %v", got, ok)
	}
	if _, ok := s.FindByIdentity("nobody"); ok {
		t.Fatalf("unexpected session for unknown identity")
	}

	if err := s.RecordMove(sess.ID, "e2e4"); err != nil {
		t.Fatalf("RecordMove: %v", err)
	}
	final, err := s.Complete(sess.ID, WinFor(sess, clock.White, ReasonResign))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if final.Status != StatusCompleted || final.Outcome.Winner != "w" || len(final.Moves) != 1 {
		t.Fatalf("final = %+v outcome=%+v", final, final.Outcome)
	}
	if _, ok := s.Get(sess.ID); ok {
		t.Fatalf("completed session still stored")
	}
	if _, ok := s.Clocks().Read(sess.ID); ok {
		t.Fatalf("clock survived completion")
	}
	if _, err := s.Complete(sess.ID, Draw(ReasonAgreement)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Complete: expected ErrNotFound, got %v", err)
	}
}

func TestListWaitingAndRemove(t *testing.T) {
	s, _ := newTestStore(t)
	r1, _ := s.CreateWaiting(side("a"), Config{TimeControl: blitz})
	r2, _ := s.CreateWaiting(side("b"), Config{TimeControl: blitz})
	r3, _ := s.CreateWaiting(side("c"), Config{TimeControl: blitz})
	if _, err := s.Join(r2.ID, side("d")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	s.Remove(r1.ID)
	s.Remove(r1.ID)

	waiting := s.ListWaiting()
	if len(waiting) != 1 || waiting[0].ID != r3.ID {
		t.Fatalf("waiting = %v", waiting)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestRecordMoveClearsDrawOffer(t *testing.T) {
	s, _ := newTestStore(t)
	sess, _ := s.CreateActive(side("w"), side("b"), Config{TimeControl: blitz})
	sess.DrawOfferBy = clock.White
	_ = s.RecordMove(sess.ID, "e2e4")
	if sess.DrawOfferBy != "" {
		t.Fatalf("draw offer survived a move")
	}
	if err := s.RecordMove("missing", "e2e4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsEmptyIdentity(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.CreateWaiting(Side{}, Config{TimeControl: blitz}); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
	if _, err := s.CreateActive(side("a"), Side{}, Config{TimeControl: blitz}); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
}
