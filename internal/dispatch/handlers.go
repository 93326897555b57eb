package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/referee"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

type request struct {
	conn    presence.Conn
	id      presence.Identity
	payload json.RawMessage
}

func (r request) decode(v any) error {
	if len(r.payload) == 0 || string(r.payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.payload, v); err != nil {
		return errBadPayload
	}
	return nil
}

type handlerFunc func(d *Dispatcher, r request) error

var handlers = map[string]handlerFunc{
	arenadto.EvCreateRoom:        (*Dispatcher).createRoom,
	arenadto.EvJoinRoom:          (*Dispatcher).joinRoom,
	arenadto.EvLeaveRoom:         (*Dispatcher).leaveRoom,
	arenadto.EvListRooms:         (*Dispatcher).listRooms,
	arenadto.EvFindMatch:         (*Dispatcher).findMatch,
	arenadto.EvCancelMatchmaking: (*Dispatcher).cancelMatchmaking,
	arenadto.EvMakeMove:          (*Dispatcher).makeMove,
	arenadto.EvRequestClock:      (*Dispatcher).requestClock,
	arenadto.EvChat:              (*Dispatcher).chat,
	arenadto.EvOfferDraw:         (*Dispatcher).offerDraw,
	arenadto.EvRespondDraw:       (*Dispatcher).respondDraw,
	arenadto.EvResign:            (*Dispatcher).resign,
}

func (d *Dispatcher) handle(conn presence.Conn, id presence.Identity, env arenadto.Envelope) {
	if id.Empty() {
		d.sendError(conn, errUnauthenticated)
		return
	}
	h, ok := handlers[env.Type]
	if !ok {
		obslog.L().Debug("dispatch_unknown_event", zap.String("user_id", id.UserID), zap.String("type", env.Type))
		d.sendError(conn, errUnknownEvent)
		return
	}
	if err := h(d, request{conn: conn, id: id, payload: env.Payload}); err != nil {
		obslog.L().Debug("dispatch_event_error",
			zap.String("user_id", id.UserID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
		d.sendError(conn, err)
	}
}

// sideFor builds a seat from the caller's presence entry. A caller whose
// lookup has not landed yet sits at the default rating.
func (d *Dispatcher) sideFor(r request) session.Side {
	rating := d.presence.DefaultRating()
	if e, ok := d.presence.Get(r.id.UserID); ok {
		rating = e.Rating
	}
	return session.Side{Identity: r.id, Conn: r.conn, Rating: rating}
}

func (d *Dispatcher) createRoom(r request) error {
	var req arenadto.CreateRoomRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	if _, busy := d.store.FindByIdentity(r.id.UserID); busy {
		return errAlreadyInSession
	}
	tc, err := d.catalog.Get(req.TimeControl)
	if err != nil {
		return err
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = defaultMode
	}
	d.queue.Cancel(r.id.UserID)
	sess, err := d.store.CreateWaiting(d.sideFor(r), session.Config{Mode: mode, TimeControl: tc, IsRated: req.IsRated})
	if err != nil {
		return err
	}
	d.send(r.conn, arenadto.Event{Type: arenadto.EvSessionCreated, Payload: d.sessionDTO(sess)})
	d.broadcastRooms()
	return nil
}

func (d *Dispatcher) joinRoom(r request) error {
	var req arenadto.JoinRoomRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return errBadPayload
	}
	if _, busy := d.store.FindByIdentity(r.id.UserID); busy {
		return errAlreadyInSession
	}
	sess, err := d.store.Join(roomID, d.sideFor(r))
	if err != nil {
		return err
	}
	d.queue.Cancel(r.id.UserID)
	d.sendSides(sess, arenadto.Event{Type: arenadto.EvRoomJoined, Payload: d.sessionDTO(sess)})
	d.broadcastRooms()
	return nil
}

func (d *Dispatcher) leaveRoom(r request) error {
	sess, ok := d.store.FindByIdentity(r.id.UserID)
	if !ok {
		return nil
	}
	switch sess.Status {
	case session.StatusWaiting:
		d.store.Remove(sess.ID)
		d.send(r.conn, arenadto.Event{Type: arenadto.EvRoomClosed, Payload: arenadto.Notice{SessionID: sess.ID}})
		d.broadcastRooms()
	case session.StatusActive:
		color, _ := sess.ColorOf(r.id.UserID)
		if opp := sess.Seat(color.Opponent()); opp != nil {
			d.send(opp.Conn, arenadto.Event{Type: arenadto.EvOpponentLeft, Payload: arenadto.Notice{SessionID: sess.ID}})
		}
		d.complete(sess, session.WinFor(sess, color.Opponent(), session.ReasonAbandon))
	}
	return nil
}

func (d *Dispatcher) listRooms(r request) error {
	d.send(r.conn, arenadto.Event{Type: arenadto.EvRooms, Payload: d.waitingRooms()})
	return nil
}

func (d *Dispatcher) findMatch(r request) error {
	var req arenadto.FindMatchRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	if _, busy := d.store.FindByIdentity(r.id.UserID); busy {
		return errAlreadyInSession
	}
	tc, err := d.catalog.Get(req.TimeControl)
	if err != nil {
		return err
	}
	m, err := d.queue.Enqueue(r.id, r.conn, tc, req.IsRated)
	if err != nil {
		return err
	}
	d.send(r.conn, arenadto.Event{Type: arenadto.EvSearching, Payload: arenadto.FindMatchRequest{TimeControl: tc.Name, IsRated: req.IsRated}})
	if m == nil {
		return nil
	}
	dto := d.sessionDTO(m.Session)
	d.send(m.White.Conn, arenadto.Event{Type: arenadto.EvMatchFound, Payload: arenadto.MatchFound{Session: dto, Color: string(clock.White)}})
	d.send(m.Black.Conn, arenadto.Event{Type: arenadto.EvMatchFound, Payload: arenadto.MatchFound{Session: dto, Color: string(clock.Black)}})
	return nil
}

func (d *Dispatcher) cancelMatchmaking(r request) error {
	d.queue.Cancel(r.id.UserID)
	d.send(r.conn, arenadto.Event{Type: arenadto.EvMatchmakingCancelled})
	return nil
}

// activeSession resolves the caller's session; callers outside an active
// session are ignored rather than answered with an error.
func (d *Dispatcher) activeSession(userID string) (*session.Session, clock.Color, bool) {
	sess, ok := d.store.FindByIdentity(userID)
	if !ok || sess.Status != session.StatusActive {
		return nil, "", false
	}
	color, ok := sess.ColorOf(userID)
	return sess, color, ok
}

// expireIfDue completes the session on time when either flag has fallen.
func (d *Dispatcher) expireIfDue(sess *session.Session) bool {
	exp := d.clocks.Expired(sess.ID)
	if !exp.Expired {
		return false
	}
	obslog.L().Info("clock_expired", zap.String("session_id", sess.ID), zap.String("loser", string(exp.Loser)))
	d.complete(sess, session.WinFor(sess, exp.Loser.Opponent(), session.ReasonTimeout))
	return true
}

func (d *Dispatcher) makeMove(r request) error {
	var req arenadto.MakeMoveRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	move := strings.TrimSpace(req.Move)
	if move == "" {
		return errBadPayload
	}
	sess, color, ok := d.activeSession(r.id.UserID)
	if !ok {
		return nil
	}
	if d.expireIfDue(sess) {
		return nil
	}
	if st, ok := d.clocks.Snapshot(sess.ID); !ok || st.Active != color {
		return nil
	}

	reading, _ := d.clocks.Advance(sess.ID, sess.TimeControl)
	if err := d.store.RecordMove(sess.ID, move); err != nil {
		return err
	}
	c := clockDTO(reading)
	d.sendSides(sess, arenadto.Event{Type: arenadto.EvClock, Payload: c})
	if opp := sess.Seat(color.Opponent()); opp != nil {
		d.send(opp.Conn, arenadto.Event{Type: arenadto.EvMove, Payload: arenadto.MovePayload{
			SessionID: sess.ID,
			Move:      move,
			By:        string(color),
			Clock:     &c,
		}})
	}
	d.judge(sess)
	return nil
}

// judge ends the session when the recorded moves reach a terminal position.
// Histories the rules engine cannot replay are left alone.
func (d *Dispatcher) judge(sess *session.Session) {
	v, err := referee.Judge(sess.Moves)
	if err != nil {
		obslog.L().Debug("referee_replay_failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	sess.Position = v.FEN
	if !v.Finished {
		return
	}
	if v.Winner != "" {
		d.complete(sess, session.WinFor(sess, v.Winner, session.ReasonCheckmate))
		return
	}
	d.complete(sess, session.Draw(v.Method))
}

func (d *Dispatcher) requestClock(r request) error {
	sess, _, ok := d.activeSession(r.id.UserID)
	if !ok {
		return nil
	}
	if d.expireIfDue(sess) {
		return nil
	}
	reading, _ := d.clocks.Read(sess.ID)
	d.send(r.conn, arenadto.Event{Type: arenadto.EvClock, Payload: clockDTO(reading)})
	return nil
}

func (d *Dispatcher) chat(r request) error {
	var req arenadto.ChatRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}
	sess, ok := d.store.FindByIdentity(r.id.UserID)
	if !ok {
		return nil
	}
	opp := sess.Opponent(r.id.UserID)
	if opp == nil {
		return nil
	}
	d.send(opp.Conn, arenadto.Event{Type: arenadto.EvChatMessage, Payload: arenadto.ChatMessage{
		SessionID: sess.ID,
		From:      r.id.DisplayName,
		Text:      text,
		SentAt:    d.clk.Now(),
	}})
	return nil
}

func (d *Dispatcher) offerDraw(r request) error {
	sess, color, ok := d.activeSession(r.id.UserID)
	if !ok || sess.DrawOfferBy == color {
		return nil
	}
	sess.DrawOfferBy = color
	if opp := sess.Seat(color.Opponent()); opp != nil {
		d.send(opp.Conn, arenadto.Event{Type: arenadto.EvDrawOffered, Payload: arenadto.Notice{SessionID: sess.ID}})
	}
	return nil
}

func (d *Dispatcher) respondDraw(r request) error {
	var req arenadto.RespondDrawRequest
	if err := r.decode(&req); err != nil {
		return err
	}
	sess, color, ok := d.activeSession(r.id.UserID)
	if !ok || sess.DrawOfferBy != color.Opponent() {
		return nil
	}
	if req.Accept {
		d.complete(sess, session.Draw(session.ReasonAgreement))
		return nil
	}
	sess.DrawOfferBy = ""
	if offerer := sess.Seat(color.Opponent()); offerer != nil {
		d.send(offerer.Conn, arenadto.Event{Type: arenadto.EvDrawDeclined, Payload: arenadto.Notice{SessionID: sess.ID}})
	}
	return nil
}

func (d *Dispatcher) resign(r request) error {
	sess, color, ok := d.activeSession(r.id.UserID)
	if !ok {
		return nil
	}
	d.complete(sess, session.WinFor(sess, color.Opponent(), session.ReasonResign))
	return nil
}
