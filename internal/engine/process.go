package engine

import "sort"

// ProcessAction is the engine's single entry point: validate the action
// against state on behalf of playerID, dispatch to the handler for its
// type, then stamp sequence numbers onto whatever events the handler
// produced. The input state is never mutated.
func ProcessAction(state GameState, action Action, playerID string) ProcessResult {
	validation := validateAction(state, action, playerID)
	if !validation.Valid {
		return resultFail(validation.ErrorCode, validation.ErrorMessage)
	}

	var result ProcessResult
	switch a := action.(type) {
	case StartGameAction:
		result = processStartGame(state)
	case RollAction:
		result = processRoll(state, a.Value, playerID)
	case MoveAction:
		result = processMove(state, a.TokenOrStackID, playerID)
	case CaptureChoiceAction:
		result = processCaptureChoice(state, a.Choice, playerID)
	default:
		return resultFail(ErrUnknownAction, "unrecognized action")
	}

	if result.Success && result.State != nil {
		assignEventSequences(result.State, result.Events)
	}
	return result
}

// assignEventSequences stamps each event with the next value of the
// state's running counter, then advances the counter past them, so the
// outgoing stream is strictly ordered even across engine calls.
func assignEventSequences(state *GameState, events []Event) {
	seq := state.EventSeq
	for _, e := range events {
		e.setSeq(seq)
		seq++
	}
	state.EventSeq = seq
}

// processStartGame begins a NotStarted game: the lowest turn_order player
// takes the first turn and the engine starts waiting on their roll.
func processStartGame(state GameState) ProcessResult {
	next := state.Clone()

	ordered := append([]Player{}, next.Players...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TurnOrder < ordered[j].TurnOrder })

	playerOrder := make([]string, len(ordered))
	for i, p := range ordered {
		playerOrder[i] = p.PlayerID
	}
	firstPlayer := ordered[0]

	turn := createNewTurn(firstPlayer.TurnOrder, firstPlayer.PlayerID)
	next.CurrentTurn = &turn
	next.Phase = PhaseInProgress
	next.CurrentEvent = EventPlayerRoll

	events := []Event{
		&GameStarted{PlayerOrder: playerOrder, FirstPlayerID: firstPlayer.PlayerID},
		&TurnStarted{PlayerID: firstPlayer.PlayerID, TurnNumber: 1},
	}
	return resultOK(next, events)
}

// processCaptureChoice is an intentional no-op: the wire protocol and the
// validation pipeline both recognize CaptureChoiceAction, but no rule set
// currently produces a branching capture the player must arbitrate, so
// the handler accepts the action and returns state unchanged.
func processCaptureChoice(state GameState, choice, playerID string) ProcessResult {
	return resultOK(state.Clone(), nil)
}
