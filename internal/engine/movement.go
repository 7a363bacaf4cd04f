package engine

import (
	"strconv"
	"strings"
)

// zoneFor classifies a token's zone given its post-move progress.
func zoneFor(progress int, board BoardSetup) TokenState {
	switch {
	case progress >= board.SquaresToWin:
		return TokenHeaven
	case progress >= board.SquaresToHomestretch:
		return TokenHomestretch
	default:
		return TokenRoad
	}
}

// processMove handles a MoveAction: advancing the named token or stack by
// the roll currently being allocated, resolving any collision it lands
// on, then deciding whether the turn continues (banked extra roll),
// passes to the next player, or ends the game outright.
func processMove(state GameState, tokenOrStackID, playerID string) ProcessResult {
	next := state.Clone()
	turn := next.CurrentTurn
	if len(turn.RollsToAllocate) == 0 {
		return resultFail(ErrInvalidAction, "no roll pending to allocate")
	}
	roll := turn.RollsToAllocate[0]

	player, _, _ := next.player(playerID)
	var events []Event

	stackID, partialCount, isPartial := parseStackMoveID(tokenOrStackID)

	switch {
	case isPartial:
		next, events = moveStackPartial(next, player, stackID, partialCount, roll)
	default:
		if s, ok := player.stack(tokenOrStackID); ok {
			next, events = moveWholeStack(next, player, s, roll)
		} else {
			next, events = moveSingleToken(next, player, tokenOrStackID, roll)
		}
	}

	turn = next.CurrentTurn
	turn.RollsToAllocate = turn.RollsToAllocate[1:]
	turn.LegalMoves = nil

	if winnerID, ok := checkWinCondition(next); ok {
		next.Phase = PhaseFinished
		events = append(events, &GameEnded{WinnerID: winnerID, FinalRankings: []string{winnerID}})
		return resultOK(next, events)
	}

	if len(turn.RollsToAllocate) > 0 {
		advanced, choiceEvents := enterChoiceOrEndTurn(next, playerID)
		return resultOK(advanced, append(events, choiceEvents...))
	}

	if turn.ExtraRolls > 0 {
		turn.ExtraRolls--
		next.CurrentEvent = EventPlayerRoll
		return resultOK(next, events)
	}

	advanced, turnEvents := endTurnAndAdvance(next, "all_rolls_used")
	return resultOK(advanced, append(events, turnEvents...))
}

// parseStackMoveID splits a "stack_id:partial_count" move identifier.
func parseStackMoveID(id string) (stackID string, partialCount int, ok bool) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return parts[0], n, true
}

func moveSingleToken(state GameState, player Player, tokenID string, roll int) (GameState, []Event) {
	next := state
	tok, _ := player.token(tokenID)
	fromState, fromProgress := tok.State, tok.Progress

	var events []Event
	var toProgress int
	var toState TokenState

	if fromState == TokenHell {
		toProgress = 0
		toState = TokenRoad
		events = append(events, &TokenExitedHell{PlayerID: player.PlayerID, TokenID: tokenID, RollUsed: roll})
	} else {
		toProgress = fromProgress + roll
		toState = zoneFor(toProgress, next.BoardSetup)
	}

	for i, t := range player.Tokens {
		if t.TokenID == tokenID {
			player.Tokens[i] = Token{TokenID: tokenID, State: toState, Progress: toProgress, InStack: false}
		}
	}
	next = next.replacePlayer(player)

	events = append(events, &TokenMoved{
		PlayerID: player.PlayerID, TokenID: tokenID,
		FromState: fromState, ToState: toState,
		FromProgress: fromProgress, ToProgress: toProgress, RollUsed: roll,
	})

	if toState == TokenHeaven {
		events = append(events, &TokenReachedHeaven{PlayerID: player.PlayerID, TokenID: tokenID})
		return next, events
	}
	if toState == TokenRoad {
		pos := absolutePosition(toProgress, player.AbsStartingIndex, next.BoardSetup.SquaresToHomestretch)
		updated, collisionEvents := resolveCollisionAtPosition(next, player.PlayerID, []string{tokenID}, pos)
		return updated, append(events, collisionEvents...)
	}
	return next, events
}

func moveWholeStack(state GameState, player Player, s Stack, roll int) (GameState, []Event) {
	next := state
	height := len(s.Tokens)
	lead, _ := player.token(s.Tokens[0])
	effectiveRoll := roll / height
	fromProgress := lead.Progress
	toProgress := fromProgress + effectiveRoll
	toState := zoneFor(toProgress, next.BoardSetup)

	if toState == TokenHeaven {
		for i, t := range player.Tokens {
			if containsString(s.Tokens, t.TokenID) {
				player.Tokens[i] = Token{TokenID: t.TokenID, State: TokenHeaven, Progress: toProgress, InStack: false}
			}
		}
		var remaining []Stack
		for _, st := range player.Stacks {
			if st.StackID != s.StackID {
				remaining = append(remaining, st)
			}
		}
		player.Stacks = remaining
		next = next.replacePlayer(player)

		events := []Event{&StackDissolved{PlayerID: player.PlayerID, StackID: s.StackID, TokenIDs: s.Tokens, Reason: "heaven"}}
		for _, tid := range s.Tokens {
			events = append(events, &TokenReachedHeaven{PlayerID: player.PlayerID, TokenID: tid})
		}
		return next, events
	}

	for i, t := range player.Tokens {
		if containsString(s.Tokens, t.TokenID) {
			player.Tokens[i] = Token{TokenID: t.TokenID, State: toState, Progress: toProgress, InStack: true}
		}
	}
	for i, st := range player.Stacks {
		if st.StackID == s.StackID {
			player.Stacks[i] = Stack{StackID: st.StackID, Tokens: append([]string{}, s.Tokens...)}
		}
	}
	next = next.replacePlayer(player)

	events := []Event{&StackMoved{
		PlayerID: player.PlayerID, StackID: s.StackID, TokenIDs: s.Tokens,
		FromProgress: fromProgress, ToProgress: toProgress, RollUsed: roll, EffectiveRoll: effectiveRoll,
	}}

	if toState == TokenRoad {
		pos := absolutePosition(toProgress, player.AbsStartingIndex, next.BoardSetup.SquaresToHomestretch)
		updated, collisionEvents := resolveCollisionAtPosition(next, player.PlayerID, s.Tokens, pos)
		return updated, append(events, collisionEvents...)
	}
	return next, events
}

func moveStackPartial(state GameState, player Player, stackID string, partialCount, roll int) (GameState, []Event) {
	next := state
	s, _ := player.stack(stackID)
	moving := append([]string{}, s.Tokens[:partialCount]...)
	remaining := append([]string{}, s.Tokens[partialCount:]...)

	var newStackID string
	var remainingStacks []Stack
	for _, st := range player.Stacks {
		if st.StackID != stackID {
			remainingStacks = append(remainingStacks, st)
		}
	}
	if len(remaining) >= 2 {
		remainingStacks = append(remainingStacks, Stack{StackID: stackID, Tokens: remaining})
	} else {
		for _, tid := range remaining {
			for i, t := range player.Tokens {
				if t.TokenID == tid {
					player.Tokens[i].InStack = false
				}
			}
		}
	}
	if len(moving) >= 2 {
		newStackID = stackID + "_split"
		remainingStacks = append(remainingStacks, Stack{StackID: newStackID, Tokens: moving})
	} else {
		for _, tid := range moving {
			for i, t := range player.Tokens {
				if t.TokenID == tid {
					player.Tokens[i].InStack = false
				}
			}
		}
	}
	player.Stacks = remainingStacks
	next = next.replacePlayer(player)

	events := []Event{&StackSplit{
		PlayerID: player.PlayerID, OriginalStackID: stackID,
		MovingTokenIDs: moving, RemainingTokenIDs: remaining, NewStackID: newStackID,
	}}

	effectiveRoll := roll / partialCount
	if len(moving) == 1 {
		updated, moveEvents := moveSingleToken(next, player, moving[0], effectiveRoll)
		return updated, append(events, moveEvents...)
	}

	player, _, _ = next.player(player.PlayerID)
	movedStack, _ := player.stack(newStackID)
	updated, moveEvents := moveWholeStack(next, player, movedStack, roll)
	return updated, append(events, moveEvents...)
}

// checkWinCondition reports the first player, if any, all of whose tokens
// have reached Heaven.
func checkWinCondition(state GameState) (string, bool) {
	for _, p := range state.Players {
		allHome := true
		for _, t := range p.Tokens {
			if t.State != TokenHeaven {
				allHome = false
				break
			}
		}
		if allHome && len(p.Tokens) > 0 {
			return p.PlayerID, true
		}
	}
	return "", false
}
