// internal/room/messages.go
package room

// Stage is the room's current phase in the round cycle.
type Stage string

const (
	StageJoining       Stage = "Joining"
	StageActiveChooses Stage = "ActiveChooses"
	StagePlayersChoose Stage = "PlayersChoose"
	StageVoting        Stage = "Voting"
	StageResults       Stage = "Results"
)

// PlayerInfo is the public per-player slice of room state included in every
// RoomState refresh.
type PlayerInfo struct {
	Connected bool `json:"connected"`
	Points    int  `json:"points"`
	Ready     bool `json:"ready"`
}

// ClientMsg is the externally tagged envelope for messages from the client.
// Exactly one field is non-nil per message; an envelope with no recognized
// field is ignored.
type ClientMsg struct {
	JoinRoom               *JoinRoomMsg               `json:"JoinRoom,omitempty"`
	Ready                  *ReadyMsg                  `json:"Ready,omitempty"`
	ActivePlayerChooseCard *ActivePlayerChooseCardMsg `json:"ActivePlayerChooseCard,omitempty"`
	PlayerChooseCard       *PlayerChooseCardMsg       `json:"PlayerChooseCard,omitempty"`
	Vote                   *VoteMsg                   `json:"Vote,omitempty"`
	Ping                   *PingMsg                   `json:"Ping,omitempty"`
}

// JoinRoomMsg must be the first message on a fresh connection.
type JoinRoomMsg struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// ReadyMsg signals the player is ready to start the next round. Valid in the
// Joining and Results stages only.
type ReadyMsg struct{}

// ActivePlayerChooseCardMsg carries the active player's card and clue.
type ActivePlayerChooseCardMsg struct {
	Card        string `json:"card"`
	Description string `json:"description"`
}

// PlayerChooseCardMsg carries a non-active player's matching card.
type PlayerChooseCardMsg struct {
	Card string `json:"card"`
}

// VoteMsg carries a vote for one of the center cards.
type VoteMsg struct {
	Card string `json:"card"`
}

// PingMsg is a client keepalive. The server ignores it.
type PingMsg struct{}

// ServerMsg is the externally tagged envelope for messages to the client.
type ServerMsg struct {
	RoomState     *RoomStateMsg     `json:"RoomState,omitempty"`
	StartRound    *StartRoundMsg    `json:"StartRound,omitempty"`
	PlayersChoose *PlayersChooseMsg `json:"PlayersChoose,omitempty"`
	BeginVoting   *BeginVotingMsg   `json:"BeginVoting,omitempty"`
	Results       *ResultsMsg       `json:"Results,omitempty"`
	ErrorMsg      *string           `json:"ErrorMsg,omitempty"`
	InvalidRoomID *InvalidRoomIDMsg `json:"InvalidRoomId,omitempty"`
}

// RoomStateMsg is the full-refresh public room state, broadcast on every
// state change. A missed intermediate refresh is harmless because the next
// one carries the complete state again.
type RoomStateMsg struct {
	RoomID       string                `json:"room_id"`
	Players      map[string]PlayerInfo `json:"players"`
	Stage        Stage                 `json:"stage"`
	ActivePlayer string                `json:"active_player,omitempty"`
	PlayerOrder  []string              `json:"player_order"`
}

// StartRoundMsg privately delivers a player's hand when a round begins.
type StartRoundMsg struct {
	Hand []string `json:"hand"`
}

// PlayersChooseMsg privately delivers the clue and the player's current hand
// once the active player has chosen.
type PlayersChooseMsg struct {
	Description string   `json:"description"`
	Hand        []string `json:"hand"`
}

// BeginVotingMsg is broadcast when voting opens. Center card order is
// randomized so position carries no information.
type BeginVotingMsg struct {
	CenterCards []string `json:"center_cards"`
	Description string   `json:"description"`
}

// ResultsMsg is broadcast when a round resolves.
type ResultsMsg struct {
	Votes          map[string]string `json:"votes"`
	SubmittedCards map[string]string `json:"submitted_cards"`
	ActiveCard     string            `json:"active_card"`
	PointChange    map[string]int    `json:"point_change"`
}

// InvalidRoomIDMsg is sent directly when a join targets an unknown room code.
type InvalidRoomIDMsg struct{}

func errorMsg(text string) ServerMsg {
	return ServerMsg{ErrorMsg: &text}
}
