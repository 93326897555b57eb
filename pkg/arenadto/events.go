package arenadto

import "encoding/json"

// Inbound event types.
const (
	EvCreateRoom        = "create_room"
	EvJoinRoom          = "join_room"
	EvLeaveRoom         = "leave_room"
	EvListRooms         = "list_rooms"
	EvFindMatch         = "find_match"
	EvCancelMatchmaking = "cancel_matchmaking"
	EvMakeMove          = "make_move"
	EvRequestClock      = "request_clock"
	EvChat              = "chat"
	EvOfferDraw         = "offer_draw"
	EvRespondDraw       = "respond_draw"
	EvResign            = "resign"
)

// Outbound event types.
const (
	EvSessionCreated       = "session_created"
	EvRoomJoined           = "room_joined"
	EvRoomClosed           = "room_closed"
	EvRooms                = "rooms"
	EvRoomsUpdated         = "rooms_updated"
	EvSearching            = "searching"
	EvMatchFound           = "match_found"
	EvMatchmakingCancelled = "matchmaking_cancelled"
	EvMove                 = "move"
	EvClock                = "clock"
	EvChatMessage          = "chat"
	EvDrawOffered          = "draw_offered"
	EvDrawDeclined         = "draw_declined"
	EvCompleted            = "completed"
	EvOpponentLeft         = "opponent_left"
	EvOpponentDisconnected = "opponent_disconnected"
	EvOnlineUsers          = "online_users"
	EvError                = "error"
)

// Envelope is the frame read from a client.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the frame written to a client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
