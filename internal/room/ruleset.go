package room

import (
	"fmt"

	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/engine"
)

// seatColors is the fixed seat-index → color convention, grounded on
// other_examples' ludo-king-go room.go (red/green/yellow/blue quadrants).
var seatColors = []string{"red", "green", "yellow", "blue"}

// standardBoard is the classic Ludo board: a 52-square ring plus a
// 6-square homestretch per player, so squares_to_win sits at 57.
func standardBoard() engine.BoardSetup {
	return engine.BoardSetup{
		SquaresToWin:         57,
		SquaresToHomestretch: 52,
		StartingPositions:    []int{0, 13, 26, 39},
		SafeSpaces:           []int{0, 8, 13, 21, 26, 34, 39, 47},
		GetOutRolls:          []int{6},
	}
}

// buildInitialGameState seats every occupied, non-empty seat as a player
// in seat-index order, numbering turn orders 1, 2, ... over the occupied
// seats only, grounded on spec.md §3's Player
// attributes and §4.8.5's quarter-board abs_starting_index convention
// (each player's start is offset by 13 squares on a 52-square ring).
func buildInitialGameState(seats []cache.SeatView) (engine.GameState, error) {
	board := standardBoard()

	var players []engine.Player
	turnOrder := 0
	for seatIndex, seat := range seats {
		if seat.UserID == "" {
			continue
		}
		turnOrder++
		color := seatColors[seatIndex%len(seatColors)]
		tokens := make([]engine.Token, 4)
		for i := range tokens {
			tokens[i] = engine.Token{
				TokenID:  fmt.Sprintf("%s_t%d", seat.UserID, i+1),
				State:    engine.TokenHell,
				Progress: 0,
			}
		}
		players = append(players, engine.Player{
			PlayerID:         seat.UserID,
			Name:             seat.DisplayName,
			Color:            color,
			TurnOrder:        turnOrder,
			AbsStartingIndex: board.StartingPositions[seatIndex%len(board.StartingPositions)],
			Tokens:           tokens,
		})
	}
	if len(players) < 2 {
		return engine.GameState{}, ErrPlayersNotReady
	}

	return engine.GameState{
		Phase:        engine.PhaseNotStarted,
		Players:      players,
		CurrentEvent: engine.EventPlayerRoll,
		BoardSetup:   board,
	}, nil
}
