// Package clock keeps one countdown pair per session and projects remaining
// time lazily from the last transition timestamp. Nothing ticks.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/timecontrol"
)

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is white or black.
func (c Color) Valid() bool { return c == White || c == Black }

// State is the stored clock. Remaining values are whole milliseconds.
type State struct {
	RemainingWhite   int64
	RemainingBlack   int64
	Active           Color
	Running          bool
	LastTransitionAt time.Time
}

// Reading is a projection of State at a point in time.
type Reading struct {
	RemainingWhite int64 `json:"remainingWhiteMs"`
	RemainingBlack int64 `json:"remainingBlackMs"`
	Active         Color `json:"activeSide"`
	Running        bool  `json:"running"`
}

// Remaining returns the projected milliseconds left for c.
func (r Reading) Remaining(c Color) int64 {
	if c == White {
		return r.RemainingWhite
	}
	return r.RemainingBlack
}

// Expiry reports whether a side has run out of time.
type Expiry struct {
	Expired bool
	Loser   Color
}

// Engine owns every session clock. It is not safe for concurrent use; the
// dispatcher loop is its only caller.
type Engine struct {
	clk    clockwork.Clock
	clocks map[string]*State
}

// NewEngine uses the real clock when clk is nil.
func NewEngine(clk clockwork.Clock) *Engine {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Engine{clk: clk, clocks: make(map[string]*State)}
}

// Create installs a stopped clock with both sides at the control's initial time. White is to move.
func (e *Engine) Create(sessionID string, tc timecontrol.TimeControl) {
	initial := tc.InitialMillis()
	e.clocks[sessionID] = &State{
		RemainingWhite:   initial,
		RemainingBlack:   initial,
		Active:           White,
		LastTransitionAt: e.clk.Now(),
	}
}

// Start sets the clock running from now. Unknown ids are ignored.
func (e *Engine) Start(sessionID string) {
	st, ok := e.clocks[sessionID]
	if !ok {
		return
	}
	st.Running = true
	st.LastTransitionAt = e.clk.Now()
}

// Read projects the live remaining time without mutating stored state.
func (e *Engine) Read(sessionID string) (Reading, bool) {
	st, ok := e.clocks[sessionID]
	if !ok {
		return Reading{}, false
	}
	return e.project(st), true
}

func (e *Engine) project(st *State) Reading {
	r := Reading{
		RemainingWhite: clamp(st.RemainingWhite),
		RemainingBlack: clamp(st.RemainingBlack),
		Active:         st.Active,
		Running:        st.Running,
	}
	if !st.Running {
		return r
	}
	elapsed := e.elapsedMillis(st)
	if st.Active == White {
		r.RemainingWhite = clamp(st.RemainingWhite - elapsed)
	} else {
		r.RemainingBlack = clamp(st.RemainingBlack - elapsed)
	}
	return r
}

// Advance charges the side to move for the time it used, credits the
// increment, hands the move to the opponent and restarts the interval.
func (e *Engine) Advance(sessionID string, tc timecontrol.TimeControl) (Reading, bool) {
	st, ok := e.clocks[sessionID]
	if !ok {
		return Reading{}, false
	}
	var elapsed int64
	if st.Running {
		elapsed = e.elapsedMillis(st)
	}
	inc := tc.IncrementMillis()
	if st.Active == White {
		st.RemainingWhite = clamp(clamp(st.RemainingWhite-elapsed) + inc)
	} else {
		st.RemainingBlack = clamp(clamp(st.RemainingBlack-elapsed) + inc)
	}
	st.Active = st.Active.Opponent()
	st.Running = true
	st.LastTransitionAt = e.clk.Now()
	return e.project(st), true
}

// Expired derives expiry from Read. When both sides read zero the side on
// the move since the last transition is blamed.
func (e *Engine) Expired(sessionID string) Expiry {
	r, ok := e.Read(sessionID)
	if !ok {
		return Expiry{}
	}
	whiteOut := r.RemainingWhite <= 0
	blackOut := r.RemainingBlack <= 0
	switch {
	case whiteOut && blackOut:
		return Expiry{Expired: true, Loser: r.Active}
	case whiteOut:
		return Expiry{Expired: true, Loser: White}
	case blackOut:
		return Expiry{Expired: true, Loser: Black}
	}
	return Expiry{}
}

// Stop discards the clock. Idempotent.
func (e *Engine) Stop(sessionID string) { delete(e.clocks, sessionID) }

// AddTime adjusts one side by seconds (negative allowed, floored at zero).
func (e *Engine) AddTime(sessionID string, side Color, seconds int) {
	st, ok := e.clocks[sessionID]
	if !ok || !side.Valid() {
		return
	}
	delta := int64(seconds) * 1000
	if side == White {
		st.RemainingWhite = clamp(st.RemainingWhite + delta)
	} else {
		st.RemainingBlack = clamp(st.RemainingBlack + delta)
	}
}

// Snapshot returns a copy of the stored state.
func (e *Engine) Snapshot(sessionID string) (State, bool) {
	st, ok := e.clocks[sessionID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Len is the number of live clocks.
func (e *Engine) Len() int { return len(e.clocks) }

func (e *Engine) elapsedMillis(st *State) int64 {
	d := e.clk.Since(st.LastTransitionAt)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

func clamp(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}
