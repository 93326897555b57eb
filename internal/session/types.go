package session

import (
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/timecontrol"
)

// Status represents a session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Result is the terminal classification of a completed session.
type Result string

const (
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// Termination reasons.
const (
	ReasonCheckmate  = "checkmate"
	ReasonTimeout    = "timeout"
	ReasonResign     = "resignation"
	ReasonAgreement  = "agreement"
	ReasonDisconnect = "disconnect"
	ReasonAbandon    = "abandoned"
)

type Outcome struct {
	Result Result `json:"result"`
	Reason string `json:"reason"`
	// Winner is the winning user id; empty on draws.
	Winner string `json:"winner,omitempty"`
}

// WinFor builds a decisive outcome for the given color.
func WinFor(s *Session, winner clock.Color, reason string) Outcome {
	out := Outcome{Reason: reason, Result: ResultBlack}
	if winner == clock.White {
		out.Result = ResultWhite
	}
	if seat := s.Seat(winner); seat != nil {
		out.Winner = seat.Identity.UserID
	}
	return out
}

func Draw(reason string) Outcome { return Outcome{Result: ResultDraw, Reason: reason} }

// Side is one participant slot.
type Side struct {
	Identity presence.Identity
	Conn     presence.Conn
	Rating   int
}

// Config is what a creator (or the matchmaker) asks for.
type Config struct {
	Mode        string
	TimeControl timecontrol.TimeControl
	IsRated     bool
}

// Session is one pending or in-progress two-player match. White is the
// creator's slot for explicit rooms.
type Session struct {
	ID          string
	White       *Side
	Black       *Side
	Position    string
	Moves       []string
	Status      Status
	Mode        string
	TimeControl timecontrol.TimeControl
	IsRated     bool
	CreatedAt   time.Time
	StartedAt   time.Time

	// DrawOfferBy is the color with an outstanding draw offer, or "".
	DrawOfferBy clock.Color
	Outcome     *Outcome
}

// Seat returns the side playing c, nil while that seat is empty.
func (s *Session) Seat(c clock.Color) *Side {
	if c == clock.White {
		return s.White
	}
	return s.Black
}

// ColorOf reports which color userID plays in s.
func (s *Session) ColorOf(userID string) (clock.Color, bool) {
	if userID == "" {
		return "", false
	}
	if s.White != nil && s.White.Identity.UserID == userID {
		return clock.White, true
	}
	if s.Black != nil && s.Black.Identity.UserID == userID {
		return clock.Black, true
	}
	return "", false
}

// Opponent returns the other participant of userID, or nil.
func (s *Session) Opponent(userID string) *Side {
	c, ok := s.ColorOf(userID)
	if !ok {
		return nil
	}
	return s.Seat(c.Opponent())
}

// Sides returns the occupied seats, white first.
func (s *Session) Sides() []*Side {
	out := make([]*Side, 0, 2)
	if s.White != nil {
		out = append(out, s.White)
	}
	if s.Black != nil {
		out = append(out, s.Black)
	}
	return out
}
