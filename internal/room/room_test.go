// internal/room/room_test.go
package room

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testDeck(n int) []string {
	cards := make([]string, n)
	for i := range cards {
		cards[i] = fmt.Sprintf("card-%02d.jpg", i)
	}
	return cards
}

// setupRoom builds a room with a generous deck and seats the named players
// with no-op cancel funcs.
func setupRoom(t *testing.T, names ...string) (*Room, map[string]*Session) {
	t.Helper()
	r := NewRoom("test", testDeck(60), testLogger())
	sessions := make(map[string]*Session, len(names))
	for _, name := range names {
		sess, err := r.Join(name, func() {})
		require.NoError(t, err)
		sessions[name] = sess
	}
	return r, sessions
}

func readyMsg() []byte {
	return []byte(`{"Ready":{}}`)
}

func activeChooseMsg(card, description string) []byte {
	return []byte(fmt.Sprintf(`{"ActivePlayerChooseCard":{"card":%q,"description":%q}}`, card, description))
}

func playerChooseMsg(card string) []byte {
	return []byte(fmt.Sprintf(`{"PlayerChooseCard":{"card":%q}}`, card))
}

func voteMsg(card string) []byte {
	return []byte(fmt.Sprintf(`{"Vote":{"card":%q}}`, card))
}

func stateOf(r *Room) *RoomStateMsg {
	return r.StateSnapshot().RoomState
}

func handOf(r *Room, name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handCopyLocked(name)
}

func submittedCard(r *Room, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted[name]
}

func lastResults(r *Room) *ResultsMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResults
}

// drainDirect empties a session's direct queue without blocking.
func drainDirect(sess *Session) []ServerMsg {
	var out []ServerMsg
	for {
		select {
		case msg := <-sess.Direct:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastError(msgs []ServerMsg) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ErrorMsg != nil {
			return *msgs[i].ErrorMsg
		}
	}
	return ""
}

// startGame readies every player and asserts the round began.
func startGame(t *testing.T, r *Room, names ...string) {
	t.Helper()
	for _, name := range names {
		r.HandleClientMsg(name, readyMsg())
	}
	require.Equal(t, StageActiveChooses, stateOf(r).Stage)
}

// nonActive returns the seated players other than the active one.
func nonActive(r *Room) (active string, others []string) {
	st := stateOf(r)
	for _, name := range st.PlayerOrder {
		if name == st.ActivePlayer {
			continue
		}
		others = append(others, name)
	}
	return st.ActivePlayer, others
}

func TestJoinAndReadyFlow(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")

	st := stateOf(r)
	assert.Equal(t, StageJoining, st.Stage)
	assert.Len(t, st.Players, 3)
	assert.Empty(t, st.ActivePlayer, "no active player before the first round")

	r.HandleClientMsg("alice", readyMsg())
	r.HandleClientMsg("bob", readyMsg())
	assert.Equal(t, StageJoining, stateOf(r).Stage, "round must not start before everyone is ready")

	r.HandleClientMsg("carol", readyMsg())

	st = stateOf(r)
	require.Equal(t, StageActiveChooses, st.Stage)
	assert.Len(t, st.PlayerOrder, 3)
	assert.Contains(t, st.PlayerOrder, st.ActivePlayer)

	for name, sess := range sessions {
		var start *StartRoundMsg
		for _, msg := range drainDirect(sess) {
			if msg.StartRound != nil {
				start = msg.StartRound
			}
		}
		require.NotNil(t, start, "player %s never received a hand", name)
		assert.Len(t, start.Hand, HandSize)
	}
}

func TestTwoPlayersCannotStart(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob")

	r.HandleClientMsg("alice", readyMsg())
	r.HandleClientMsg("bob", readyMsg())

	assert.Equal(t, StageJoining, stateOf(r).Stage)
}

func TestFullRoundSplitVote(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, others := nonActive(r)
	activeCard := handOf(r, active)[0]
	r.HandleClientMsg(active, activeChooseMsg(activeCard, "forest"))
	require.Equal(t, StagePlayersChoose, stateOf(r).Stage)
	assert.NotContains(t, handOf(r, active), activeCard, "chosen card must leave the hand")

	for name, sess := range sessions {
		if name == active {
			continue
		}
		var pc *PlayersChooseMsg
		for _, msg := range drainDirect(sess) {
			if msg.PlayersChoose != nil {
				pc = msg.PlayersChoose
			}
		}
		require.NotNil(t, pc)
		assert.Equal(t, "forest", pc.Description)
		assert.NotContains(t, pc.Hand, activeCard)
	}

	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	require.Equal(t, StageVoting, stateOf(r).Stage)

	// One voter finds the active card, the other is fooled by the finder's
	// decoy: a split, so the active player gains exactly 3.
	finder, fooled := others[0], others[1]
	r.HandleClientMsg(finder, voteMsg(activeCard))
	r.HandleClientMsg(fooled, voteMsg(submittedCard(r, finder)))

	require.Equal(t, StageResults, stateOf(r).Stage)
	res := lastResults(r)
	require.NotNil(t, res)
	assert.Equal(t, activeCard, res.ActiveCard)
	assert.Equal(t, 3, res.PointChange[active])
	assert.Equal(t, 1, res.PointChange[finder], "finder's decoy attracted one vote")
	assert.Equal(t, 0, res.PointChange[fooled])

	st := stateOf(r)
	assert.Equal(t, 3, st.Players[active].Points)
	assert.Equal(t, 1, st.Players[finder].Points)
	assert.Equal(t, 0, st.Players[fooled].Points)
}

func TestFullRoundEverybodyFinds(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, others := nonActive(r)
	activeCard := handOf(r, active)[0]
	r.HandleClientMsg(active, activeChooseMsg(activeCard, "forest"))
	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	for _, name := range others {
		r.HandleClientMsg(name, voteMsg(activeCard))
	}

	require.Equal(t, StageResults, stateOf(r).Stage)
	res := lastResults(r)
	assert.Equal(t, 0, res.PointChange[active])
	for _, name := range others {
		assert.Equal(t, 2, res.PointChange[name])
	}
}

func TestDescriptionValidation(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, _ := nonActive(r)
	card := handOf(r, active)[0]
	drainDirect(sessions[active])

	r.HandleClientMsg(active, activeChooseMsg(card, "two words"))

	assert.Equal(t, StageActiveChooses, stateOf(r).Stage, "rejected clue must not advance the stage")
	assert.Contains(t, handOf(r, active), card, "rejected submission must not remove the card")
	assert.Equal(t, "Description cannot contain spaces!", lastError(drainDirect(sessions[active])))

	// A surrounding-whitespace clue is trimmed and accepted.
	r.HandleClientMsg(active, activeChooseMsg(card, "  forest  "))
	require.Equal(t, StagePlayersChoose, stateOf(r).Stage)
}

func TestActiveChooseInvalidCard(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, _ := nonActive(r)
	drainDirect(sessions[active])

	r.HandleClientMsg(active, activeChooseMsg("not-in-hand.jpg", "forest"))

	assert.Equal(t, StageActiveChooses, stateOf(r).Stage)
	assert.Equal(t, "Invalid card", lastError(drainDirect(sessions[active])))
}

func TestNonActivePlayerCannotChooseForActive(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	_, others := nonActive(r)
	intruder := others[0]
	r.HandleClientMsg(intruder, activeChooseMsg(handOf(r, intruder)[0], "forest"))

	assert.Equal(t, StageActiveChooses, stateOf(r).Stage, "only the active player may open the round")
}

func TestVoteValidation(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, others := nonActive(r)
	activeCard := handOf(r, active)[0]
	r.HandleClientMsg(active, activeChooseMsg(activeCard, "forest"))
	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	require.Equal(t, StageVoting, stateOf(r).Stage)
	for _, sess := range sessions {
		drainDirect(sess)
	}

	voter := others[0]

	r.HandleClientMsg(active, voteMsg(submittedCard(r, voter)))
	assert.Equal(t, "Active player cannot vote", lastError(drainDirect(sessions[active])))

	r.HandleClientMsg(voter, voteMsg("nowhere.jpg"))
	assert.Equal(t, "Invalid card", lastError(drainDirect(sessions[voter])))

	r.HandleClientMsg(voter, voteMsg(submittedCard(r, voter)))
	assert.Equal(t, "You cannot vote for your own card", lastError(drainDirect(sessions[voter])))

	assert.Equal(t, StageVoting, stateOf(r).Stage, "rejected votes must not resolve the round")
	r.mu.Lock()
	assert.Empty(t, r.votes)
	r.mu.Unlock()
}

func TestRoomFull(t *testing.T) {
	names := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	r, _ := setupRoom(t, names...)

	_, err := r.Join("p9", func() {})
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, stateOf(r).Players, MaxPlayers)
}

func TestDuplicateName(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob")

	_, err := r.Join("alice", func() {})
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestJoinAfterStart(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	_, err := r.Join("dave", func() {})
	assert.ErrorIs(t, err, ErrGameStarted)
}

func TestReconnectKeepsSeat(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	hand := handOf(r, "bob")
	r.Leave("bob")

	st := stateOf(r)
	require.Contains(t, st.Players, "bob", "mid-game leave keeps the seat")
	assert.False(t, st.Players["bob"].Connected)

	sess, err := r.Join("bob", func() {})
	require.NoError(t, err)
	require.NotNil(t, sess)

	st = stateOf(r)
	assert.True(t, st.Players["bob"].Connected)
	assert.Equal(t, hand, handOf(r, "bob"), "reconnection must preserve the hand")

	// The stage payload for the current stage is re-delivered on reconnect.
	var sawStageMsg bool
	for _, msg := range drainDirect(sess) {
		if msg.StartRound != nil {
			sawStageMsg = true
		}
	}
	assert.True(t, sawStageMsg)
}

func TestLeaveWhileJoiningFreesSeat(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob")

	r.Leave("bob")

	st := stateOf(r)
	assert.NotContains(t, st.Players, "bob")
	assert.Equal(t, 1, r.NumActive())

	// The name is reusable by someone else.
	_, err := r.Join("bob", func() {})
	assert.NoError(t, err)
}

func TestDeckExhaustionAbortsRound(t *testing.T) {
	r := NewRoom("tiny", testDeck(5), testLogger())
	sessions := make(map[string]*Session)
	for _, name := range []string{"alice", "bob", "carol"} {
		sess, err := r.Join(name, func() {})
		require.NoError(t, err)
		sessions[name] = sess
	}

	r.HandleClientMsg("alice", readyMsg())
	r.HandleClientMsg("bob", readyMsg())
	r.HandleClientMsg("carol", readyMsg())

	st := stateOf(r)
	assert.Equal(t, StageJoining, st.Stage, "a failed deal must leave the stage unchanged")
	assert.Empty(t, st.PlayerOrder)
	assert.Empty(t, handOf(r, "alice"))
	assert.Equal(t, "Not enough cards in the deck", lastError(drainDirect(sessions["carol"])))
}

func TestSecondRoundRotatesActivePlayer(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	first, others := nonActive(r)
	activeCard := handOf(r, first)[0]
	r.HandleClientMsg(first, activeChooseMsg(activeCard, "forest"))
	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	r.HandleClientMsg(others[0], voteMsg(activeCard))
	r.HandleClientMsg(others[1], voteMsg(submittedCard(r, others[0])))
	require.Equal(t, StageResults, stateOf(r).Stage)

	firstPoints := stateOf(r).Players[first].Points

	r.HandleClientMsg("alice", readyMsg())
	r.HandleClientMsg("bob", readyMsg())
	r.HandleClientMsg("carol", readyMsg())

	st := stateOf(r)
	require.Equal(t, StageActiveChooses, st.Stage)
	assert.NotEqual(t, first, st.ActivePlayer, "the active role rotates each round")
	assert.Equal(t, firstPoints, st.Players[first].Points, "points persist across rounds")

	for _, name := range st.PlayerOrder {
		assert.Len(t, handOf(r, name), HandSize, "hands are topped back up at round start")
	}
}

func TestInvalidJSONAnswersWithError(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")

	r.HandleClientMsg("alice", []byte(`{nonsense`))

	assert.Equal(t, "Invalid message", lastError(drainDirect(sessions["alice"])))
	assert.Equal(t, StageJoining, stateOf(r).Stage)
}

func TestPingIsIgnored(t *testing.T) {
	r, sessions := setupRoom(t, "alice", "bob", "carol")

	before := r.LastAccess()
	r.HandleClientMsg("alice", []byte(`{"Ping":{}}`))

	assert.Empty(t, lastError(drainDirect(sessions["alice"])))
	assert.GreaterOrEqual(t, r.LastAccess(), before)
	assert.Equal(t, StageJoining, stateOf(r).Stage)
}

func TestRoundResolvedHook(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")

	var record *RoundRecord
	r.OnRoundResolved = func(rr RoundRecord) { record = &rr }

	startGame(t, r, "alice", "bob", "carol")
	active, others := nonActive(r)
	activeCard := handOf(r, active)[0]
	r.HandleClientMsg(active, activeChooseMsg(activeCard, "forest"))
	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	r.HandleClientMsg(others[0], voteMsg(activeCard))
	r.HandleClientMsg(others[1], voteMsg(submittedCard(r, others[0])))

	require.NotNil(t, record)
	assert.Equal(t, "test", record.RoomID)
	assert.Equal(t, active, record.ActivePlayer)
	assert.Equal(t, activeCard, record.ActiveCard)
	assert.Len(t, record.SubmittedCards, 3)
	assert.Len(t, record.Votes, 2)
}

func TestCardLeavesExactlyOnePlace(t *testing.T) {
	r, _ := setupRoom(t, "alice", "bob", "carol")
	startGame(t, r, "alice", "bob", "carol")

	active, others := nonActive(r)
	r.HandleClientMsg(active, activeChooseMsg(handOf(r, active)[0], "forest"))
	for _, name := range others {
		r.HandleClientMsg(name, playerChooseMsg(handOf(r, name)[0]))
	}
	require.Equal(t, StageVoting, stateOf(r).Stage)

	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]string)
	for _, card := range r.deck {
		seen[card] = "deck"
	}
	for name, hand := range r.hands {
		for _, card := range hand {
			require.NotContains(t, seen, card, "card %s held by both %s and %s", card, seen[card], name)
			seen[card] = name
		}
	}
	for name, card := range r.submitted {
		require.NotContains(t, seen, card, "submitted card %s also held by %s", card, seen[card])
		seen[card] = "center:" + name
	}
}
