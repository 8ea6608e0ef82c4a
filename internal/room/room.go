// internal/room/room.go
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

const (
	// MinPlayers is the smallest group a round can start with.
	MinPlayers = 3
	// MaxPlayers caps how many seats a room hands out while joining.
	MaxPlayers = 8
	// HandSize is the target hand capacity topped up at each round start.
	HandSize = 6
)

// Seat validation errors. The error text doubles as the client-facing
// ErrorMsg payload, so the wording is part of the wire contract.
var (
	ErrNameTaken   = errors.New("Name already taken")
	ErrRoomFull    = errors.New("Too many players!")
	ErrGameStarted = errors.New("Game has already started")
)

// RoundRecord summarizes one resolved round for the telemetry hook.
type RoundRecord struct {
	RoomID         string            `json:"room_id"`
	ActivePlayer   string            `json:"active_player"`
	ActiveCard     string            `json:"active_card"`
	Votes          map[string]string `json:"votes"`
	SubmittedCards map[string]string `json:"submitted_cards"`
	PointChange    map[string]int    `json:"point_change"`
}

// Room holds the entire state for a single game instance in memory. All game
// state is mutated under mu; locked sections only compute and queue outgoing
// messages onto bounded session channels, never perform network sends.
type Room struct {
	ID string

	mu           sync.Mutex
	players      map[string]*PlayerInfo
	playerOrder  []string
	activePlayer int
	deck         []string
	hands        map[string][]string
	stage        Stage
	description  string
	submitted    map[string]string
	votes        map[string]string
	sessions     map[string]*Session
	lastResults  *ResultsMsg
	rng          *rand.Rand

	lastAccess atomic.Int64

	logger *logrus.Entry

	// OnRoundResolved, when set, receives a record of every resolved round.
	// It is invoked while the room lock is held and must not block.
	OnRoundResolved func(RoundRecord)
}

// NewRoom builds a room in the Joining stage seeded with a private copy of
// the shared deck catalog.
func NewRoom(id string, baseDeck []string, logger *logrus.Logger) *Room {
	deck := make([]string, len(baseDeck))
	copy(deck, baseDeck)

	r := &Room{
		ID:        id,
		players:   make(map[string]*PlayerInfo),
		deck:      deck,
		hands:     make(map[string][]string),
		stage:     StageJoining,
		submitted: make(map[string]string),
		votes:     make(map[string]string),
		sessions:  make(map[string]*Session),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.WithField("room", id),
	}
	r.Touch()
	return r
}

// Touch records an access for the idle reclamation policy.
func (r *Room) Touch() {
	r.lastAccess.Store(time.Now().Unix())
}

// LastAccess returns the unix timestamp of the most recent connection attempt.
func (r *Room) LastAccess() int64 {
	return r.lastAccess.Load()
}

// NumActive returns the count of currently attached sessions.
func (r *Room) NumActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StateSnapshot returns the current public room state wrapped in a ServerMsg.
func (r *Room) StateSnapshot() ServerMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomStateLocked()
}

// Join seats the player (or reactivates a disconnected seat) and registers
// delivery channels for them. The returned session carries the broadcast and
// direct channels the caller pumps into the socket; cancel is invoked if the
// session stops draining its direct queue.
func (r *Room) Join(name string, cancel func()) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		if p.Connected {
			return nil, ErrNameTaken
		}
		// Reconnection: the seat keeps its hand and points.
		p.Connected = true
		r.logger.Infof("player %q reconnected", name)
	} else if r.stage == StageJoining {
		if len(r.players) >= MaxPlayers {
			return nil, ErrRoomFull
		}
		r.players[name] = &PlayerInfo{Connected: true}
		r.logger.Infof("player %q joined", name)
	} else {
		return nil, ErrGameStarted
	}

	sess := newSession(name, cancel)
	r.sessions[name] = sess

	r.broadcastLocked(r.roomStateLocked())
	if msg, ok := r.stagePayloadLocked(name); ok {
		r.directLocked(name, msg)
	}
	return sess, nil
}

// Leave detaches the player's session. While still joining the seat is given
// up entirely; once the game has started the seat is kept for reconnection.
func (r *Room) Leave(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage == StageJoining {
		delete(r.players, name)
	} else if p, ok := r.players[name]; ok {
		p.Connected = false
	}

	if sess, ok := r.sessions[name]; ok {
		delete(r.sessions, name)
		sess.close()
	}
	r.logger.Infof("player %q left", name)

	r.broadcastLocked(r.roomStateLocked())
}

// HandleClientMsg parses one inbound message and dispatches it into the state
// machine. Messages inconsistent with the current stage or actor are silently
// ignored; validation failures answer the sender with a direct ErrorMsg.
func (r *Room) HandleClientMsg(name string, data []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warnf("invalid message from %q: %v", name, err)
		r.mu.Lock()
		r.directLocked(name, errorMsg("Invalid message"))
		r.mu.Unlock()
		return
	}

	r.Touch()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case msg.Ready != nil:
		r.handleReadyLocked(name)
	case msg.ActivePlayerChooseCard != nil:
		r.handleActiveChooseLocked(name, msg.ActivePlayerChooseCard.Card, msg.ActivePlayerChooseCard.Description)
	case msg.PlayerChooseCard != nil:
		r.handlePlayerChooseLocked(name, msg.PlayerChooseCard.Card)
	case msg.Vote != nil:
		r.handleVoteLocked(name, msg.Vote.Card)
	case msg.Ping != nil:
		// keepalive
	default:
		// JoinRoom mid-session or an empty envelope: out of sequence, ignore.
	}
}

// handleReadyLocked marks the player ready and starts the next round once
// every seat is ready and the group is large enough.
func (r *Room) handleReadyLocked(name string) {
	if r.stage != StageJoining && r.stage != StageResults {
		return
	}
	p, ok := r.players[name]
	if !ok {
		return
	}
	p.Ready = true
	r.broadcastLocked(r.roomStateLocked())

	if len(r.players) >= MinPlayers && r.allReadyLocked() {
		r.startRoundLocked(name)
	}
}

// startRoundLocked performs the Joining/Results -> ActiveChooses transition.
// All mutations are staged on copies and committed only after a full deal
// succeeds, so a drained deck aborts the round without corrupting state.
func (r *Room) startRoundLocked(initiator string) {
	firstRound := len(r.playerOrder) == 0

	var order []string
	active := r.activePlayer
	if firstRound {
		for name := range r.players {
			order = append(order, name)
		}
		r.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		active = 0
	} else {
		order = r.playerOrder
		active = (active + 1) % len(order)
	}

	deck := make([]string, len(r.deck))
	copy(deck, r.deck)
	r.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	hands := make(map[string][]string, len(r.players))
	for name := range r.players {
		hand := make([]string, len(r.hands[name]))
		copy(hand, r.hands[name])
		for len(hand) < HandSize {
			if len(deck) == 0 {
				r.logger.Errorf("deck exhausted while dealing, aborting round")
				r.directLocked(initiator, errorMsg("Not enough cards in the deck"))
				return
			}
			hand = append(hand, deck[len(deck)-1])
			deck = deck[:len(deck)-1]
		}
		hands[name] = hand
	}

	r.playerOrder = order
	r.activePlayer = active
	r.deck = deck
	r.hands = hands
	r.submitted = make(map[string]string)
	r.votes = make(map[string]string)
	r.description = ""
	r.lastResults = nil
	r.stage = StageActiveChooses
	r.clearReadyLocked()

	r.logger.Infof("round started, active player %q", r.activeNameLocked())

	for name := range r.players {
		if msg, ok := r.stagePayloadLocked(name); ok {
			r.directLocked(name, msg)
		}
	}
	r.broadcastLocked(r.roomStateLocked())
}

// handleActiveChooseLocked performs ActiveChooses -> PlayersChoose. Only the
// active player may act; the card must come from their hand and the clue must
// be a single non-empty word.
func (r *Room) handleActiveChooseLocked(name, card, description string) {
	if r.stage != StageActiveChooses || name != r.activeNameLocked() {
		return
	}
	if !r.takeCardLocked(name, card, false) {
		r.directLocked(name, errorMsg("Invalid card"))
		return
	}

	description = strings.TrimSpace(description)
	if description == "" || strings.ContainsFunc(description, unicode.IsSpace) {
		r.directLocked(name, errorMsg("Description cannot contain spaces!"))
		return
	}

	r.takeCardLocked(name, card, true)
	r.submitted[name] = card
	r.description = description
	r.stage = StagePlayersChoose
	r.clearReadyLocked()

	for player := range r.players {
		if msg, ok := r.stagePayloadLocked(player); ok {
			r.directLocked(player, msg)
		}
	}
	r.broadcastLocked(r.roomStateLocked())
}

// handlePlayerChooseLocked records a non-active player's submission during
// PlayersChoose and resolves the stage once everyone but the active player
// is ready.
func (r *Room) handlePlayerChooseLocked(name, card string) {
	if r.stage != StagePlayersChoose || name == r.activeNameLocked() {
		return
	}
	if _, done := r.submitted[name]; done {
		return
	}
	if !r.takeCardLocked(name, card, true) {
		r.directLocked(name, errorMsg("Invalid card"))
		return
	}

	r.submitted[name] = card
	r.players[name].Ready = true
	r.broadcastLocked(r.roomStateLocked())

	if r.readyCountLocked() == len(r.players)-1 {
		r.beginVotingLocked()
	}
}

// beginVotingLocked performs PlayersChoose -> Voting. Players without a
// submission are assigned a uniformly random card from their remaining hand.
func (r *Room) beginVotingLocked() {
	for _, name := range r.playerOrder {
		if _, ok := r.submitted[name]; ok {
			continue
		}
		hand := r.hands[name]
		if len(hand) == 0 {
			continue
		}
		card := hand[r.rng.Intn(len(hand))]
		r.takeCardLocked(name, card, true)
		r.submitted[name] = card
	}

	r.stage = StageVoting
	r.clearReadyLocked()

	if msg, ok := r.stagePayloadLocked(""); ok {
		r.broadcastLocked(msg)
	}
	r.broadcastLocked(r.roomStateLocked())
}

// handleVoteLocked records a vote during Voting and resolves the round once
// everyone but the active player is ready.
func (r *Room) handleVoteLocked(name, card string) {
	if r.stage != StageVoting {
		return
	}
	if name == r.activeNameLocked() {
		r.directLocked(name, errorMsg("Active player cannot vote"))
		return
	}
	if !r.cardInCenterLocked(card) {
		r.directLocked(name, errorMsg("Invalid card"))
		return
	}
	if r.submitted[name] == card {
		r.directLocked(name, errorMsg("You cannot vote for your own card"))
		return
	}

	r.votes[name] = card
	r.players[name].Ready = true
	r.broadcastLocked(r.roomStateLocked())

	if r.readyCountLocked() == len(r.players)-1 {
		r.finishRoundLocked()
	}
}

// finishRoundLocked performs Voting -> Results: assigns random votes to any
// non-voter (never their own card), scores the round, and applies the point
// deltas to the persistent totals.
func (r *Room) finishRoundLocked() {
	center := r.centerCardsLocked()
	activeName := r.activeNameLocked()
	for _, name := range r.playerOrder {
		if name == activeName {
			continue
		}
		if _, voted := r.votes[name]; voted {
			continue
		}
		card := center[r.rng.Intn(len(center))]
		for card == r.submitted[name] {
			card = center[r.rng.Intn(len(center))]
		}
		r.votes[name] = card
	}

	r.stage = StageResults
	pointChange := ComputePointChange(r.submitted, r.votes, activeName)
	for name, delta := range pointChange {
		if p, ok := r.players[name]; ok {
			p.Points += delta
		}
	}

	r.lastResults = &ResultsMsg{
		Votes:          copyStringMap(r.votes),
		SubmittedCards: copyStringMap(r.submitted),
		ActiveCard:     r.submitted[activeName],
		PointChange:    pointChange,
	}

	r.logger.Infof("round resolved, active card %q, %d votes", r.lastResults.ActiveCard, len(r.votes))

	r.broadcastLocked(ServerMsg{Results: r.lastResults})
	r.broadcastLocked(r.roomStateLocked())

	if r.OnRoundResolved != nil {
		r.OnRoundResolved(RoundRecord{
			RoomID:         r.ID,
			ActivePlayer:   activeName,
			ActiveCard:     r.lastResults.ActiveCard,
			Votes:          copyStringMap(r.votes),
			SubmittedCards: copyStringMap(r.submitted),
			PointChange:    pointChange,
		})
	}
}

// stagePayloadLocked builds the stage-specific payload for one player. For
// broadcast stages (Voting, Results) the name is ignored.
func (r *Room) stagePayloadLocked(name string) (ServerMsg, bool) {
	switch r.stage {
	case StageActiveChooses:
		return ServerMsg{StartRound: &StartRoundMsg{Hand: r.handCopyLocked(name)}}, true
	case StagePlayersChoose:
		return ServerMsg{PlayersChoose: &PlayersChooseMsg{
			Description: r.description,
			Hand:        r.handCopyLocked(name),
		}}, true
	case StageVoting:
		return ServerMsg{BeginVoting: &BeginVotingMsg{
			CenterCards: r.centerCardsLocked(),
			Description: r.description,
		}}, true
	case StageResults:
		if r.lastResults == nil {
			return ServerMsg{}, false
		}
		return ServerMsg{Results: r.lastResults}, true
	default:
		return ServerMsg{}, false
	}
}

// centerCardsLocked returns the submitted cards in freshly randomized order.
func (r *Room) centerCardsLocked() []string {
	center := make([]string, 0, len(r.submitted))
	for _, card := range r.submitted {
		center = append(center, card)
	}
	r.rng.Shuffle(len(center), func(i, j int) {
		center[i], center[j] = center[j], center[i]
	})
	return center
}

func (r *Room) cardInCenterLocked(card string) bool {
	for _, c := range r.submitted {
		if c == card {
			return true
		}
	}
	return false
}

// takeCardLocked reports whether card is in name's hand, removing it when
// remove is set. Removing at acceptance time keeps a card in exactly one of
// hand, deck, or the center.
func (r *Room) takeCardLocked(name, card string, remove bool) bool {
	hand := r.hands[name]
	for i, c := range hand {
		if c != card {
			continue
		}
		if remove {
			r.hands[name] = append(hand[:i], hand[i+1:]...)
		}
		return true
	}
	return false
}

func (r *Room) handCopyLocked(name string) []string {
	hand := make([]string, len(r.hands[name]))
	copy(hand, r.hands[name])
	return hand
}

// activeNameLocked returns the active player's name, or "" before the first
// round. An out-of-range index means the state machine is corrupted.
func (r *Room) activeNameLocked() string {
	if len(r.playerOrder) == 0 {
		return ""
	}
	if r.activePlayer < 0 || r.activePlayer >= len(r.playerOrder) {
		panic(fmt.Sprintf("room %s: active player index %d out of range (%d players)", r.ID, r.activePlayer, len(r.playerOrder)))
	}
	return r.playerOrder[r.activePlayer]
}

func (r *Room) clearReadyLocked() {
	for _, p := range r.players {
		p.Ready = false
	}
}

func (r *Room) allReadyLocked() bool {
	for _, p := range r.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) readyCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.Ready {
			n++
		}
	}
	return n
}

func (r *Room) roomStateLocked() ServerMsg {
	players := make(map[string]PlayerInfo, len(r.players))
	for name, p := range r.players {
		players[name] = *p
	}
	order := make([]string, len(r.playerOrder))
	copy(order, r.playerOrder)

	return ServerMsg{RoomState: &RoomStateMsg{
		RoomID:       r.ID,
		Players:      players,
		Stage:        r.stage,
		ActivePlayer: r.activeNameLocked(),
		PlayerOrder:  order,
	}}
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
