// internal/room/scoring.go
package room

// ComputePointChange tallies one resolved round. submitted maps every player
// (active included) to the card they placed in the center, votes maps every
// non-active player to the card they voted for.
//
// If nobody or everybody found the active card, each voter gains 2 and the
// active player gains 0. Otherwise the active player gains exactly 3, and
// each non-active player gains one point per vote their own card attracted.
// Deltas are never negative.
func ComputePointChange(submitted, votes map[string]string, activePlayer string) map[string]int {
	change := make(map[string]int, len(submitted))

	activeCard := submitted[activePlayer]
	votesFor := make(map[string]int)
	for _, card := range votes {
		votesFor[card]++
	}

	v := votesFor[activeCard]
	if v == 0 || v == len(votes) {
		for voter := range votes {
			change[voter] = 2
		}
		change[activePlayer] = 0
		return change
	}

	change[activePlayer] = 3
	for player, card := range submitted {
		if player == activePlayer {
			continue
		}
		change[player] = 0
		if card == activeCard {
			change[player] = 3
		}
		change[player] += votesFor[card]
	}
	return change
}
