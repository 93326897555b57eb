package arenadto

import "time"

type CreateRoomRequest struct {
	Mode        string `json:"mode"`
	TimeControl string `json:"timeControl"`
	IsRated     bool   `json:"isRated"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type FindMatchRequest struct {
	TimeControl string `json:"timeControl"`
	IsRated     bool   `json:"isRated"`
}

type MakeMoveRequest struct {
	Move string `json:"moveNotation"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type RespondDrawRequest struct {
	Accept bool `json:"accept"`
}

type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
}

type Clock struct {
	RemainingWhiteMs int64  `json:"remainingWhiteMs"`
	RemainingBlackMs int64  `json:"remainingBlackMs"`
	ActiveSide       string `json:"activeSide"`
	Running          bool   `json:"running"`
}

type Session struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Mode        string    `json:"mode"`
	TimeControl string    `json:"timeControl"`
	IsRated     bool      `json:"isRated"`
	White       *Player   `json:"white,omitempty"`
	Black       *Player   `json:"black,omitempty"`
	Moves       []string  `json:"moves"`
	Clock       *Clock    `json:"clock,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MatchFound struct {
	Session *Session `json:"session"`
	Color   string   `json:"color"`
}

type MovePayload struct {
	SessionID string `json:"sessionId"`
	Move      string `json:"moveNotation"`
	By        string `json:"by"`
	Clock     *Clock `json:"clock,omitempty"`
}

type ChatMessage struct {
	SessionID string    `json:"sessionId"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sentAt"`
}

type Completed struct {
	SessionID string   `json:"sessionId"`
	Result    string   `json:"result"`
	Reason    string   `json:"reason"`
	Winner    string   `json:"winner,omitempty"`
	Moves     []string `json:"moves"`
}

type OnlineUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type Notice struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}
