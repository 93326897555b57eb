// Package outcome delivers completed sessions to durable collaborators.
// The arena calls sinks and logs failures; it never waits on or reacts to them.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/session"
)

type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
}

// Record is the payload every sink receives.
type Record struct {
	SessionID   string    `json:"sessionId"`
	Mode        string    `json:"mode"`
	TimeControl string    `json:"timeControl"`
	IsRated     bool      `json:"isRated"`
	White       Player    `json:"white"`
	Black       Player    `json:"black"`
	Result      string    `json:"result"`
	Reason      string    `json:"reason"`
	Winner      string    `json:"winner,omitempty"`
	Moves       []string  `json:"moves"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
}

// FromSession snapshots a completed session. Moves are copied.
func FromSession(s *session.Session, endedAt time.Time) Record {
	rec := Record{
		SessionID:   s.ID,
		Mode:        s.Mode,
		TimeControl: s.TimeControl.Name,
		IsRated:     s.IsRated,
		Moves:       append([]string(nil), s.Moves...),
		StartedAt:   s.StartedAt,
		EndedAt:     endedAt,
	}
	if rec.Moves == nil {
		rec.Moves = []string{}
	}
	if s.White != nil {
		rec.White = Player{UserID: s.White.Identity.UserID, DisplayName: s.White.Identity.DisplayName, Rating: s.White.Rating}
	}
	if s.Black != nil {
		rec.Black = Player{UserID: s.Black.Identity.UserID, DisplayName: s.Black.Identity.DisplayName, Rating: s.Black.Rating}
	}
	if s.Outcome != nil {
		rec.Result = string(s.Outcome.Result)
		rec.Reason = s.Outcome.Reason
		rec.Winner = s.Outcome.Winner
	}
	return rec
}

func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, rec Record) error
}

// Multi publishes to every sink concurrently and joins their errors.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, rec Record) error {
	if len(m) == 0 {
		return nil
	}
	errs := make([]error, len(m))
	var wg sync.WaitGroup
	for i, s := range m {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			if err := s.Publish(ctx, rec); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
