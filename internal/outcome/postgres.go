package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/referee"
)

const Schema = `
CREATE TABLE IF NOT EXISTS arena_sessions (
    session_id   TEXT PRIMARY KEY,
    mode         TEXT NOT NULL,
    time_control TEXT NOT NULL,
    is_rated     BOOLEAN NOT NULL,
    white_id     TEXT NOT NULL,
    white_name   TEXT NOT NULL,
    white_rating INTEGER NOT NULL,
    black_id     TEXT NOT NULL,
    black_name   TEXT NOT NULL,
    black_rating INTEGER NOT NULL,
    result       TEXT NOT NULL,
    reason       TEXT NOT NULL,
    winner_id    TEXT,
    moves        JSONB NOT NULL,
    pgn          TEXT NOT NULL,
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
)`

// PostgresSink upserts completed sessions into arena_sessions.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink { return &PostgresSink{db: db} }

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create arena_sessions: %w", err)
	}
	return nil
}

func (s *PostgresSink) Publish(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	movesRaw, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	const q = `INSERT INTO arena_sessions (
        session_id, mode, time_control, is_rated,
        white_id, white_name, white_rating,
        black_id, black_name, black_rating,
        result, reason, winner_id, moves, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16,$17,$18
      ) ON CONFLICT (session_id) DO UPDATE SET
        result=EXCLUDED.result,
        reason=EXCLUDED.reason,
        winner_id=EXCLUDED.winner_id,
        moves=EXCLUDED.moves,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = s.db.ExecContext(ctx, q,
		rec.SessionID, rec.Mode, rec.TimeControl, rec.IsRated,
		rec.White.UserID, rec.White.DisplayName, rec.White.Rating,
		rec.Black.UserID, rec.Black.DisplayName, rec.Black.Rating,
		rec.Result, rec.Reason, nullString(rec.Winner), string(movesRaw), BuildPGN(rec),
		nullTime(rec.StartedAt), rec.EndedAt, rec.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert arena_sessions: %w", err)
	}
	return nil
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders the record as PGN. Moves that cannot be replayed are
// written as submitted.
func BuildPGN(rec Record) string {
	pgnResult := mapResultToPGN(rec.Result)
	moves, err := referee.SAN(rec.Moves)
	if err != nil {
		moves = rec.Moves
	}

	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Cheese Arena\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.White.DisplayName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.Black.DisplayName))
	if strings.TrimSpace(rec.TimeControl) != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", sanitizePGN(rec.TimeControl))
	}
	if strings.TrimSpace(rec.Reason) != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(rec.Reason)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	for i := 0; i < len(moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(moves[i]))
		if i+1 < len(moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
