package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBoard() BoardSetup {
	return BoardSetup{
		SquaresToWin:         12,
		SquaresToHomestretch: 10,
		StartingPositions:    []int{0, 5},
		SafeSpaces:           []int{0, 8},
		GetOutRolls:          []int{6},
	}
}

func testPlayer(id string, turnOrder, absStart int) Player {
	return Player{
		PlayerID:         id,
		Name:             id,
		Color:            "red",
		TurnOrder:        turnOrder,
		AbsStartingIndex: absStart,
		Tokens: []Token{
			{TokenID: id + "_t1", State: TokenHell, Progress: 0},
			{TokenID: id + "_t2", State: TokenHell, Progress: 0},
		},
	}
}

func newNotStartedState() GameState {
	return GameState{
		Phase:        PhaseNotStarted,
		Players:      []Player{testPlayer("p1", 1, 0), testPlayer("p2", 2, 5)},
		CurrentEvent: EventPlayerRoll,
		BoardSetup:   testBoard(),
	}
}

func findEvent[T any](events []Event) (T, bool) {
	for _, e := range events {
		if t, ok := e.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

func TestProcessAction_StartGame(t *testing.T) {
	state := newNotStartedState()
	result := ProcessAction(state, StartGameAction{}, "p1")

	require.True(t, result.Success)
	assert.Equal(t, PhaseInProgress, result.State.Phase)
	assert.Equal(t, "p1", result.State.CurrentTurn.PlayerID)
	assert.Equal(t, EventPlayerRoll, result.State.CurrentEvent)

	started, ok := findEvent[*GameStarted](result.Events)
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p2"}, started.PlayerOrder)
	assert.Equal(t, 0, started.Seq())

	turnStarted, ok := findEvent[*TurnStarted](result.Events)
	require.True(t, ok)
	assert.Equal(t, 1, turnStarted.Seq())
}

func TestProcessAction_StartGameTwiceFails(t *testing.T) {
	state := newNotStartedState()
	started := ProcessAction(state, StartGameAction{}, "p1")
	require.True(t, started.Success)

	again := ProcessAction(*started.State, StartGameAction{}, "p1")
	assert.False(t, again.Success)
	assert.Equal(t, ErrGameAlreadyStarted, again.ErrorCode)
}

func TestProcessAction_NotYourTurn(t *testing.T) {
	state := newNotStartedState()
	started := ProcessAction(state, StartGameAction{}, "p1")
	require.True(t, started.Success)

	result := ProcessAction(*started.State, RollAction{Value: 3}, "p2")
	assert.False(t, result.Success)
	assert.Equal(t, ErrNotYourTurn, result.ErrorCode)
}

func TestProcessAction_RollWithoutLegalMoveEndsTurn(t *testing.T) {
	state := newNotStartedState()
	started := ProcessAction(state, StartGameAction{}, "p1")
	require.True(t, started.Success)

	result := ProcessAction(*started.State, RollAction{Value: 3}, "p1")
	require.True(t, result.Success)

	_, hasChoice := findEvent[*AwaitingChoice](result.Events)
	assert.False(t, hasChoice, "no hell token can exit on a 3, so no choice should be offered")

	turnEnded, ok := findEvent[*TurnEnded](result.Events)
	require.True(t, ok)
	assert.Equal(t, "p2", turnEnded.NextPlayerID)
	assert.Equal(t, "p2", result.State.CurrentTurn.PlayerID)
}

func TestProcessAction_SixStaysInPlayerRollUntilNonSixThenOffersChoice(t *testing.T) {
	state := newNotStartedState()
	started := ProcessAction(state, StartGameAction{}, "p1")
	require.True(t, started.Success)

	// rolling a six never offers a choice by itself — it just keeps
	// queuing rolls and staying in player_roll.
	rolledSix := ProcessAction(*started.State, RollAction{Value: 6}, "p1")
	require.True(t, rolledSix.Success)
	assert.Equal(t, EventPlayerRoll, rolledSix.State.CurrentEvent)
	assert.Equal(t, []int{6}, rolledSix.State.CurrentTurn.RollsToAllocate)
	_, hasChoice := findEvent[*AwaitingChoice](rolledSix.Events)
	assert.False(t, hasChoice, "a six alone must not trigger a choice")

	// the next, non-six roll evaluates legal moves against the oldest
	// queued roll (the six), not the value just rolled.
	rolledTwo := ProcessAction(*rolledSix.State, RollAction{Value: 2}, "p1")
	require.True(t, rolledTwo.Success)
	assert.Equal(t, EventPlayerChoice, rolledTwo.State.CurrentEvent)
	assert.Equal(t, []int{6, 2}, rolledTwo.State.CurrentTurn.RollsToAllocate)

	choice, ok := findEvent[*AwaitingChoice](rolledTwo.Events)
	require.True(t, ok)
	assert.Equal(t, 6, choice.RollToAllocate)
	assert.ElementsMatch(t, []string{"p1_t1", "p1_t2"}, choice.LegalMoves)

	moved := ProcessAction(*rolledTwo.State, MoveAction{TokenOrStackID: "p1_t1"}, "p1")
	require.True(t, moved.Success)

	exited, ok := findEvent[*TokenExitedHell](moved.Events)
	require.True(t, ok)
	assert.Equal(t, "p1_t1", exited.TokenID)

	tok, _ := findPlayerToken(*moved.State, "p1", "p1_t1")
	assert.Equal(t, TokenRoad, tok.State)
	assert.Equal(t, 0, tok.Progress)

	// the queued 2 still needs allocating, so the turn re-enters the
	// choice cycle for it instead of ending.
	assert.Equal(t, "p1", moved.State.CurrentTurn.PlayerID)
	assert.Equal(t, EventPlayerChoice, moved.State.CurrentEvent)
	assert.Equal(t, []int{2}, moved.State.CurrentTurn.RollsToAllocate)

	secondChoice, ok := findEvent[*AwaitingChoice](moved.Events)
	require.True(t, ok)
	assert.Equal(t, 2, secondChoice.RollToAllocate)
	assert.Equal(t, []string{"p1_t1"}, secondChoice.LegalMoves)

	movedAgain := ProcessAction(*moved.State, MoveAction{TokenOrStackID: "p1_t1"}, "p1")
	require.True(t, movedAgain.Success)

	turnEnded, ok := findEvent[*TurnEnded](movedAgain.Events)
	require.True(t, ok)
	assert.Equal(t, "all_rolls_used", turnEnded.Reason)
	assert.Equal(t, "p2", turnEnded.NextPlayerID)
	assert.Equal(t, "p2", movedAgain.State.CurrentTurn.PlayerID)
}

func TestProcessAction_CaptureSendsTokenToHell(t *testing.T) {
	state := newNotStartedState()
	state.Phase = PhaseInProgress
	state.CurrentEvent = EventPlayerRoll
	turn := createNewTurn(1, "p1")
	state.CurrentTurn = &turn

	// p1's token sits two squares from an absolute position that p2's
	// token already occupies (not a safe space), set up for capture.
	p1 := state.Players[0]
	p1.Tokens[0] = Token{TokenID: "p1_t1", State: TokenRoad, Progress: 3}
	p2 := state.Players[1]
	// p2 abs_starting_index=5, progress=0 -> absolute position 5.
	// p1 abs_starting_index=0, progress=3+2=5 -> absolute position 5.
	p2.Tokens[0] = Token{TokenID: "p2_t1", State: TokenRoad, Progress: 0}
	state.Players[0] = p1
	state.Players[1] = p2

	rolled := ProcessAction(state, RollAction{Value: 2}, "p1")
	require.True(t, rolled.Success)
	require.Equal(t, EventPlayerChoice, rolled.State.CurrentEvent)

	moved := ProcessAction(*rolled.State, MoveAction{TokenOrStackID: "p1_t1"}, "p1")
	require.True(t, moved.Success)

	captured, ok := findEvent[*TokenCaptured](moved.Events)
	require.True(t, ok)
	assert.Equal(t, "p2_t1", captured.CapturedTokenID)

	tok, _ := findPlayerToken(*moved.State, "p2", "p2_t1")
	assert.Equal(t, TokenHell, tok.State)
	assert.Equal(t, 0, tok.Progress)
}

// TestProcessAction_ThreeSixesForfeitsTurn replays spec scenario S1
// literally: roll 6, roll 6, roll 6, with no Move in between. Since a
// six always keeps the turn in player_roll rather than forcing a
// choice, all three rolls are accepted back to back.
func TestProcessAction_ThreeSixesForfeitsTurn(t *testing.T) {
	state := newNotStartedState()
	started := ProcessAction(state, StartGameAction{}, "p1")
	require.True(t, started.Success)
	current := *started.State

	r1 := ProcessAction(current, RollAction{Value: 6}, "p1")
	require.True(t, r1.Success)
	assert.Equal(t, EventPlayerRoll, r1.State.CurrentEvent)

	r2 := ProcessAction(*r1.State, RollAction{Value: 6}, "p1")
	require.True(t, r2.Success)
	assert.Equal(t, EventPlayerRoll, r2.State.CurrentEvent)

	r3 := ProcessAction(*r2.State, RollAction{Value: 6}, "p1")
	require.True(t, r3.Success)

	penalty, ok := findEvent[*ThreeSixesPenalty](r3.Events)
	require.True(t, ok)
	assert.Equal(t, []int{6, 6, 6}, penalty.Rolls)

	turnEnded, ok := findEvent[*TurnEnded](r3.Events)
	require.True(t, ok)
	assert.Equal(t, "three_sixes", turnEnded.Reason)
	assert.Equal(t, "p2", turnEnded.NextPlayerID)

	turnStarted, ok := findEvent[*TurnStarted](r3.Events)
	require.True(t, ok)
	assert.Equal(t, "p2", turnStarted.PlayerID)
	assert.Equal(t, 2, turnStarted.TurnNumber)

	assert.Equal(t, "p2", r3.State.CurrentTurn.PlayerID)
	assert.Empty(t, r3.State.CurrentTurn.RollsToAllocate)
}

func findPlayerToken(state GameState, playerID, tokenID string) (Token, bool) {
	p, _, ok := state.player(playerID)
	if !ok {
		return Token{}, false
	}
	return p.token(tokenID)
}
