package engine

import (
	"encoding/json"
	"fmt"
)

// Action is the closed set of inputs the engine accepts. Each concrete
// type implements actionType so ProcessAction can switch on it without a
// reflection-based dispatch table.
type Action interface {
	actionType() string
}

// RollAction reports the dice value the player rolled.
type RollAction struct {
	Value int `json:"value"`
}

func (RollAction) actionType() string { return "roll" }

// MoveAction names the token or stack the player chose to move with
// the roll currently being allocated.
type MoveAction struct {
	TokenOrStackID string `json:"token_or_stack_id"`
}

func (MoveAction) actionType() string { return "move" }

// CaptureChoiceAction carries the player's pick among a set of capture
// options. Processing it is a deliberate no-op for now; see process.go.
type CaptureChoiceAction struct {
	Choice string `json:"choice"`
}

func (CaptureChoiceAction) actionType() string { return "capture_choice" }

// StartGameAction begins a game whose phase is currently NotStarted.
type StartGameAction struct{}

func (StartGameAction) actionType() string { return "start_game" }

// rawAction is the wire shape every action arrives in before being
// resolved to its concrete Go type.
type rawAction struct {
	ActionType     string `json:"action_type"`
	Value          *int   `json:"value,omitempty"`
	TokenOrStackID string `json:"token_or_stack_id,omitempty"`
	Choice         string `json:"choice,omitempty"`
}

// BuildActionFromPayload decodes a dispatch-layer payload into a concrete
// Action, validating only shape — legality is judged later by validateAction.
func BuildActionFromPayload(payload []byte) (Action, error) {
	var raw rawAction
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	switch raw.ActionType {
	case "roll":
		if raw.Value == nil || *raw.Value < 1 || *raw.Value > 6 {
			return nil, fmt.Errorf("roll action requires value in 1..6")
		}
		return RollAction{Value: *raw.Value}, nil
	case "move":
		if raw.TokenOrStackID == "" {
			return nil, fmt.Errorf("move action requires token_or_stack_id")
		}
		return MoveAction{TokenOrStackID: raw.TokenOrStackID}, nil
	case "capture_choice":
		if raw.Choice == "" {
			return nil, fmt.Errorf("capture_choice action requires choice")
		}
		return CaptureChoiceAction{Choice: raw.Choice}, nil
	case "start_game":
		return StartGameAction{}, nil
	default:
		return nil, fmt.Errorf("unknown action_type %q", raw.ActionType)
	}
}
