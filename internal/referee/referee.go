// Package referee replays recorded moves to detect game-ending positions.
// Move legality is never enforced on the live path; a history the rules
// engine cannot replay simply yields no verdict.
package referee

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/clock"
)

// Verdict describes the board after replaying a history.
type Verdict struct {
	Finished bool
	// Winner is empty for draws and unfinished games.
	Winner clock.Color
	Method string
	FEN    string
}

// Replay rebuilds a game from the initial position. Each move is read as UCI
// first and as SAN if that fails.
func Replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	uci := nchess.UCINotation{}
	for i, raw := range moves {
		mv := strings.TrimSpace(raw)
		if mv == "" {
			return nil, fmt.Errorf("move %d: empty", i+1)
		}
		if decoded, err := uci.Decode(game.Position(), strings.ToLower(mv)); err == nil {
			if err := game.Move(decoded, nil); err != nil {
				return nil, fmt.Errorf("apply move %d %s: %w", i+1, mv, err)
			}
			continue
		}
		if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("decode move %d %s: %w", i+1, mv, err)
		}
	}
	return game, nil
}

// Judge replays moves and reports whether the last one ended the game.
func Judge(moves []string) (Verdict, error) {
	game, err := Replay(moves)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{FEN: game.FEN()}
	switch game.Outcome() {
	case nchess.WhiteWon:
		v.Finished, v.Winner = true, clock.White
	case nchess.BlackWon:
		v.Finished, v.Winner = true, clock.Black
	case nchess.Draw:
		v.Finished = true
	}
	if v.Finished {
		v.Method = methodName(game.Method())
	}
	return v, nil
}

// SAN converts a replayable history into standard algebraic notation.
func SAN(moves []string) ([]string, error) {
	game, err := Replay(moves)
	if err != nil {
		return nil, err
	}
	positions := game.Positions()
	played := game.Moves()
	out := make([]string, len(played))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range played {
		if i < len(positions) {
			out[i] = notation.Encode(positions[i], mv)
		}
	}
	return out, nil
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	default:
		return strings.ToLower(m.String())
	}
}
