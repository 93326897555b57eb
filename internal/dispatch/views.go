package dispatch

import (
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

func clockDTO(r clock.Reading) arenadto.Clock {
	return arenadto.Clock{
		RemainingWhiteMs: r.RemainingWhite,
		RemainingBlackMs: r.RemainingBlack,
		ActiveSide:       string(r.Active),
		Running:          r.Running,
	}
}

func playerDTO(s *session.Side) *arenadto.Player {
	if s == nil {
		return nil
	}
	return &arenadto.Player{UserID: s.Identity.UserID, DisplayName: s.Identity.DisplayName, Rating: s.Rating}
}

func (d *Dispatcher) sessionDTO(s *session.Session) *arenadto.Session {
	out := &arenadto.Session{
		ID:          s.ID,
		Status:      string(s.Status),
		Mode:        s.Mode,
		TimeControl: s.TimeControl.Name,
		IsRated:     s.IsRated,
		White:       playerDTO(s.White),
		Black:       playerDTO(s.Black),
		Moves:       append([]string{}, s.Moves...),
		CreatedAt:   s.CreatedAt,
	}
	if r, ok := d.clocks.Read(s.ID); ok {
		c := clockDTO(r)
		out.Clock = &c
	}
	return out
}

func completedDTO(s *session.Session) arenadto.Completed {
	out := arenadto.Completed{SessionID: s.ID, Moves: append([]string{}, s.Moves...)}
	if s.Outcome != nil {
		out.Result = string(s.Outcome.Result)
		out.Reason = s.Outcome.Reason
		out.Winner = s.Outcome.Winner
	}
	return out
}

func (d *Dispatcher) waitingRooms() []arenadto.Session {
	waiting := d.store.ListWaiting()
	out := make([]arenadto.Session, 0, len(waiting))
	for _, s := range waiting {
		out = append(out, *d.sessionDTO(s))
	}
	return out
}

// send is best effort; a dead handle is cleaned up by its own disconnect.
func (d *Dispatcher) send(conn presence.Conn, ev arenadto.Event) {
	if conn == nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		obslog.L().Debug("dispatch_send_failed", zap.String("conn_id", conn.ID()), zap.String("type", ev.Type), zap.Error(err))
	}
}

func (d *Dispatcher) sendSides(s *session.Session, ev arenadto.Event) {
	for _, side := range s.Sides() {
		d.send(side.Conn, ev)
	}
}

func (d *Dispatcher) sendError(conn presence.Conn, err error) {
	de := toDomainError(err)
	de.Message = d.messages.Text("error."+de.Code, de.Message, map[string]any{
		"Detail":        de.Message,
		"DefaultRating": d.presence.DefaultRating(),
	})
	d.send(conn, arenadto.Event{Type: arenadto.EvError, Payload: de})
}

func (d *Dispatcher) broadcast(ev arenadto.Event) {
	for _, c := range d.presence.Conns() {
		d.send(c, ev)
	}
}

func (d *Dispatcher) broadcastRooms() {
	d.broadcast(arenadto.Event{Type: arenadto.EvRoomsUpdated, Payload: d.waitingRooms()})
}

func (d *Dispatcher) broadcastOnline() {
	ids := d.presence.List()
	users := make([]arenadto.OnlineUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, arenadto.OnlineUser{UserID: id.UserID, DisplayName: id.DisplayName})
	}
	d.broadcast(arenadto.Event{Type: arenadto.EvOnlineUsers, Payload: users})
}
