package engine

// createNewTurn builds a fresh Turn for the player at the given turn_order.
func createNewTurn(turnOrder int, playerID string) Turn {
	return Turn{
		PlayerID:         playerID,
		InitialRoll:      true,
		RollsToAllocate:  nil,
		LegalMoves:       nil,
		CurrentTurnOrder: turnOrder,
		ExtraRolls:       0,
	}
}

// getNextTurnOrder cycles turn_order through 1..numPlayers.
func getNextTurnOrder(currentOrder, numPlayers int) int {
	return (currentOrder % numPlayers) + 1
}

// endTurnAndAdvance closes out the current player's turn and starts the
// next player's, returning the TurnEnded/TurnStarted events in order.
func endTurnAndAdvance(state GameState, reason string) (GameState, []Event) {
	next := state.Clone()
	finishedOrder := next.CurrentTurn.CurrentTurnOrder
	nextOrder := getNextTurnOrder(finishedOrder, len(next.Players))
	nextPlayer, _ := next.playerByTurnOrder(nextOrder)

	events := []Event{
		&TurnEnded{PlayerID: next.CurrentTurn.PlayerID, Reason: reason, NextPlayerID: nextPlayer.PlayerID},
	}

	turn := createNewTurn(nextOrder, nextPlayer.PlayerID)
	next.CurrentTurn = &turn
	next.CurrentEvent = EventPlayerRoll

	events = append(events, &TurnStarted{PlayerID: nextPlayer.PlayerID, TurnNumber: nextOrder})
	return next, events
}

// processRoll handles a RollAction: every value is appended to
// rolls_to_allocate, and three consecutive sixes in that queue forfeit
// the whole turn. A six otherwise just keeps the turn in player_roll —
// the extra roll it grants is the queue growing, not a separate
// counter — so legal moves are only ever evaluated once a non-six
// arrives, and then against the oldest queued roll, not necessarily
// the value just rolled.
func processRoll(state GameState, value int, playerID string) ProcessResult {
	next := state.Clone()
	turn := next.CurrentTurn
	turn.InitialRoll = false
	turn.RollsToAllocate = append(turn.RollsToAllocate, value)

	if threeTrailingSixes(turn.RollsToAllocate) {
		turn.RollsToAllocate = nil
		turn.ExtraRolls = 0
		events := []Event{&ThreeSixesPenalty{PlayerID: playerID, Rolls: []int{6, 6, 6}}}
		advanced, turnEvents := endTurnAndAdvance(next, "three_sixes")
		return resultOK(advanced, append(events, turnEvents...))
	}

	rollNumber := len(turn.RollsToAllocate)
	events := []Event{&DiceRolled{PlayerID: playerID, Value: value, RollNumber: rollNumber, GrantsExtraRoll: value == 6}}

	if value == 6 {
		next.CurrentEvent = EventPlayerRoll
		return resultOK(next, events)
	}

	advanced, choiceEvents := enterChoiceOrEndTurn(next, playerID)
	return resultOK(advanced, append(events, choiceEvents...))
}

// threeTrailingSixes reports whether the three most recently queued
// rolls are all sixes.
func threeTrailingSixes(rolls []int) bool {
	n := len(rolls)
	if n < 3 {
		return false
	}
	return rolls[n-3] == 6 && rolls[n-2] == 6 && rolls[n-1] == 6
}

// enterChoiceOrEndTurn evaluates legal moves for the oldest queued
// roll. If any exist, the turn transitions to player_choice awaiting
// that roll's allocation; otherwise the roll queue is discarded and
// the turn ends.
func enterChoiceOrEndTurn(state GameState, playerID string) (GameState, []Event) {
	next := state
	turn := next.CurrentTurn
	roll := turn.RollsToAllocate[0]

	player, _, _ := next.player(playerID)
	legalMoves := GetLegalMoves(player, roll, next.BoardSetup)

	if len(legalMoves) == 0 {
		turn.RollsToAllocate = nil
		return endTurnAndAdvance(next, "no_legal_moves")
	}

	turn.LegalMoves = legalMoves
	next.CurrentEvent = EventPlayerChoice
	return next, []Event{&AwaitingChoice{PlayerID: playerID, LegalMoves: legalMoves, RollToAllocate: roll}}
}
