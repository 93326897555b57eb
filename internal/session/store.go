package session

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrNotJoinable = errors.New("session is not joinable")
	ErrInvalidSide = errors.New("session side requires an identity")
)

// Store is the authoritative in-memory record of every live session.
// Completed sessions are evicted immediately. Only the dispatcher loop calls it.
type Store struct {
	clocks *clock.Engine
	clk    clockwork.Clock
	newID  func() string

	sessions map[string]*Session
	order    []string
}

type Option func(*Store)

// WithIDGenerator overrides uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(clocks *clock.Engine, clk clockwork.Clock, opts ...Option) *Store {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	s := &Store{
		clocks:   clocks,
		clk:      clk,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Clocks() *clock.Engine { return s.clocks }

// CreateWaiting opens a room with the creator as white and an empty black seat.
func (s *Store) CreateWaiting(creator Side, cfg Config) (*Session, error) {
	if creator.Identity.Empty() {
		return nil, ErrInvalidSide
	}
	sess := s.newSession(cfg)
	sess.Status = StatusWaiting
	sess.White = &creator
	s.insert(sess)
	obslog.L().Info("session_create",
		zap.String("session_id", sess.ID),
		zap.String("creator_id", creator.Identity.UserID),
		zap.String("time_control", cfg.TimeControl.Name),
	)
	return sess, nil
}

// CreateActive materializes a matched pair directly into an active session with a running clock.
func (s *Store) CreateActive(white, black Side, cfg Config) (*Session, error) {
	if white.Identity.Empty() || black.Identity.Empty() {
		return nil, ErrInvalidSide
	}
	sess := s.newSession(cfg)
	sess.White = &white
	sess.Black = &black
	s.activate(sess)
	s.insert(sess)
	obslog.L().Info("session_create_active",
		zap.String("session_id", sess.ID),
		zap.String("white_id", white.Identity.UserID),
		zap.String("black_id", black.Identity.UserID),
	)
	return sess, nil
}

// Join fills the black seat of a waiting room and starts its clock.
func (s *Store) Join(sessionID string, joiner Side) (*Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != StatusWaiting {
		return nil, ErrNotJoinable
	}
	if joiner.Identity.Empty() {
		return nil, ErrInvalidSide
	}
	if sess.White != nil && sess.White.Identity.UserID == joiner.Identity.UserID {
		return nil, ErrNotJoinable
	}
	sess.Black = &joiner
	s.activate(sess)
	obslog.L().Info("session_join",
		zap.String("session_id", sess.ID),
		zap.String("white_id", sess.White.Identity.UserID),
		zap.String("black_id", joiner.Identity.UserID),
	)
	return sess, nil
}

// FindByIdentity scans every live session for one containing userID.
func (s *Store) FindByIdentity(userID string) (*Session, bool) {
	if userID == "" {
		return nil, false
	}
	for _, id := range s.order {
		sess := s.sessions[id]
		if _, ok := sess.ColorOf(userID); ok {
			return sess, true
		}
	}
	return nil, false
}

func (s *Store) Get(sessionID string) (*Session, bool) {
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// RecordMove appends to the move history. Legality is not checked here.
func (s *Store) RecordMove(sessionID, move string) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Moves = append(sess.Moves, move)
	sess.DrawOfferBy = ""
	return nil
}

// Complete marks the session completed, stops its clock and evicts it.
// The returned session is the final snapshot handed to the outcome sink.
func (s *Store) Complete(sessionID string, outcome Outcome) (*Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	sess.Status = StatusCompleted
	sess.Outcome = &outcome
	sess.DrawOfferBy = ""
	s.evict(sessionID)
	obslog.L().Info("session_complete",
		zap.String("session_id", sessionID),
		zap.String("result", string(outcome.Result)),
		zap.String("reason", outcome.Reason),
		zap.Int("moves", len(sess.Moves)),
	)
	return sess, nil
}

// Remove evicts without recording an outcome (a waiting room abandoned by its creator).
func (s *Store) Remove(sessionID string) {
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	s.evict(sessionID)
	obslog.L().Info("session_remove", zap.String("session_id", sessionID))
}

// ListWaiting returns waiting rooms in creation order.
func (s *Store) ListWaiting() []*Session {
	var out []*Session
	for _, id := range s.order {
		if sess := s.sessions[id]; sess.Status == StatusWaiting {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Store) Len() int { return len(s.sessions) }

func (s *Store) newSession(cfg Config) *Session {
	id := s.newID()
	if s.clocks != nil {
		s.clocks.Create(id, cfg.TimeControl)
	}
	return &Session{
		ID:          id,
		Moves:       []string{},
		Mode:        cfg.Mode,
		TimeControl: cfg.TimeControl,
		IsRated:     cfg.IsRated,
		CreatedAt:   s.clk.Now(),
	}
}

func (s *Store) activate(sess *Session) {
	sess.Status = StatusActive
	sess.StartedAt = s.clk.Now()
	if s.clocks != nil {
		s.clocks.Start(sess.ID)
	}
}

func (s *Store) insert(sess *Session) {
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
}

func (s *Store) evict(sessionID string) {
	delete(s.sessions, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.clocks != nil {
		s.clocks.Stop(sessionID)
	}
}
