package engine

import "fmt"

// absolutePosition maps a token's private progress counter onto the
// shared road's coordinate space, where collisions between different
// players' tokens are possible. Homestretch and Hell are private lanes:
// callers must not ask for the absolute position of a token in either.
func absolutePosition(progress, absStartingIndex, squaresToHomestretch int) int {
	return (absStartingIndex + progress) % squaresToHomestretch
}

// occupant names one player's presence on the shared road at a position.
type occupant struct {
	playerID string
	tokenIDs []string
}

// findRoadOccupants returns every player (other than excludePlayerID) with
// a Road token sitting at position, grouped by player.
func findRoadOccupants(state GameState, position int, excludePlayerID string, excludeTokenIDs []string) []occupant {
	excluded := make(map[string]bool, len(excludeTokenIDs))
	for _, id := range excludeTokenIDs {
		excluded[id] = true
	}

	byPlayer := map[string][]string{}
	var order []string
	for _, p := range state.Players {
		if p.PlayerID == excludePlayerID {
			continue
		}
		for _, t := range p.Tokens {
			if t.State != TokenRoad || excluded[t.TokenID] {
				continue
			}
			if absolutePosition(t.Progress, p.AbsStartingIndex, state.BoardSetup.SquaresToHomestretch) != position {
				continue
			}
			if _, seen := byPlayer[p.PlayerID]; !seen {
				order = append(order, p.PlayerID)
			}
			byPlayer[p.PlayerID] = append(byPlayer[p.PlayerID], t.TokenID)
		}
	}

	occupants := make([]occupant, 0, len(order))
	for _, id := range order {
		occupants = append(occupants, occupant{playerID: id, tokenIDs: byPlayer[id]})
	}
	return occupants
}

// findSamePlayerRoadTokens returns the mover's own other Road tokens
// already sitting at position, for same-player stacking.
func findSamePlayerRoadTokens(player Player, position int, board BoardSetup, excludeTokenIDs []string) []string {
	excluded := make(map[string]bool, len(excludeTokenIDs))
	for _, id := range excludeTokenIDs {
		excluded[id] = true
	}
	var found []string
	for _, t := range player.Tokens {
		if t.State != TokenRoad || excluded[t.TokenID] {
			continue
		}
		if absolutePosition(t.Progress, player.AbsStartingIndex, board.SquaresToHomestretch) == position {
			found = append(found, t.TokenID)
		}
	}
	return found
}

// resolveCollisionAtPosition checks whether tokens arriving at the shared
// road position collide with anything already there, applying stacking
// (same player) or safe-space-gated capture (different player). It is a
// no-op on homestretch/hell destinations, which callers never pass here.
func resolveCollisionAtPosition(state GameState, moverPlayerID string, moverTokenIDs []string, position int) (GameState, []Event) {
	next := state
	var events []Event

	mover, _, _ := next.player(moverPlayerID)
	if same := findSamePlayerRoadTokens(mover, position, next.BoardSetup, moverTokenIDs); len(same) > 0 {
		updated, stackEvents := resolveStacking(next, moverPlayerID, append(append([]string{}, moverTokenIDs...), same...), position)
		return updated, append(events, stackEvents...)
	}

	if next.BoardSetup.isSafeSpace(position) {
		return next, events
	}

	for _, occ := range findRoadOccupants(next, position, moverPlayerID, nil) {
		updated, captureEvents := resolveCapture(next, moverPlayerID, moverTokenIDs, occ.playerID, occ.tokenIDs)
		next = updated
		events = append(events, captureEvents...)
	}
	return next, events
}

// resolveStacking merges tokenIDs (drawn from one or more existing stacks
// plus loose tokens) into a single stack, absorbing any stack either side
// already belonged to.
func resolveStacking(state GameState, playerID string, tokenIDs []string, position int) (GameState, []Event) {
	next := state.Clone()
	player, _, _ := next.player(playerID)

	merged := map[string]bool{}
	var ordered []string
	addToken := func(id string) {
		if !merged[id] {
			merged[id] = true
			ordered = append(ordered, id)
		}
	}
	for _, id := range tokenIDs {
		addToken(id)
	}

	var remainingStacks []Stack
	for _, s := range player.Stacks {
		absorbed := false
		for _, tid := range s.Tokens {
			if merged[tid] {
				absorbed = true
				break
			}
		}
		if absorbed {
			for _, tid := range s.Tokens {
				addToken(tid)
			}
			continue
		}
		remainingStacks = append(remainingStacks, s)
	}

	stackID := fmt.Sprintf("%s_stack_%d", playerID, next.NextStackID)
	next.NextStackID++

	for i, t := range player.Tokens {
		if merged[t.TokenID] {
			player.Tokens[i].InStack = true
		}
	}
	player.Stacks = append(remainingStacks, Stack{StackID: stackID, Tokens: ordered})

	next = next.replacePlayer(player)
	return next, []Event{&StackFormed{PlayerID: playerID, StackID: stackID, TokenIDs: ordered, Position: position}}
}

// resolveCapture applies a capture between a mover (token or stack) and a
// stationary occupant. The larger side wins ties go to the mover; if the
// occupant's group is strictly larger, nothing happens.
func resolveCapture(state GameState, capturingPlayerID string, capturingTokenIDs []string, capturedPlayerID string, capturedTokenIDs []string) (GameState, []Event) {
	next := state
	capturingSize := len(capturingTokenIDs)
	capturedSize := len(capturedTokenIDs)
	if capturingSize < capturedSize {
		return next, nil
	}

	capturedPlayer, _, _ := next.player(capturedPlayerID)
	var dissolvedStackID string
	var dissolvedReason = "captured"
	for _, s := range capturedPlayer.Stacks {
		if len(s.Tokens) > 0 && containsString(capturedTokenIDs, s.Tokens[0]) {
			dissolvedStackID = s.StackID
			break
		}
	}

	var position int
	if t, ok := capturedPlayer.token(capturedTokenIDs[0]); ok {
		position = absolutePosition(t.Progress, capturedPlayer.AbsStartingIndex, next.BoardSetup.SquaresToHomestretch)
	}

	next = sendToHell(next, capturedPlayerID, capturedTokenIDs)

	var events []Event
	if dissolvedStackID != "" {
		events = append(events, &StackDissolved{PlayerID: capturedPlayerID, StackID: dissolvedStackID, TokenIDs: capturedTokenIDs, Reason: dissolvedReason})
	}
	for _, tid := range capturedTokenIDs {
		events = append(events, &TokenCaptured{
			CapturingPlayerID: capturingPlayerID,
			CapturingTokenID:  capturingTokenIDs[0],
			CapturedPlayerID:  capturedPlayerID,
			CapturedTokenID:   tid,
			Position:          position,
			GrantsExtraRoll:   true,
		})
	}

	next = grantExtraRolls(next, capturedSize)
	return next, events
}

// sendToHell resets each named token to Hell and strips it from any stack
// it belonged to, dissolving stacks left with fewer than two members.
func sendToHell(state GameState, playerID string, tokenIDs []string) GameState {
	next := state.Clone()
	player, _, _ := next.player(playerID)
	toHell := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		toHell[id] = true
	}

	for i, t := range player.Tokens {
		if toHell[t.TokenID] {
			player.Tokens[i] = Token{TokenID: t.TokenID, State: TokenHell, Progress: 0, InStack: false}
		}
	}

	var remaining []Stack
	for _, s := range player.Stacks {
		var kept []string
		for _, tid := range s.Tokens {
			if !toHell[tid] {
				kept = append(kept, tid)
			}
		}
		if len(kept) >= 2 {
			remaining = append(remaining, Stack{StackID: s.StackID, Tokens: kept})
		} else {
			for _, tid := range kept {
				for i, t := range player.Tokens {
					if t.TokenID == tid {
						player.Tokens[i].InStack = false
					}
				}
			}
		}
	}
	player.Stacks = remaining

	return next.replacePlayer(player)
}

// grantExtraRolls increments the current turn's banked extra-roll count.
func grantExtraRolls(state GameState, count int) GameState {
	if count <= 0 || state.CurrentTurn == nil {
		return state
	}
	next := state.Clone()
	next.CurrentTurn.ExtraRolls += count
	return next
}
