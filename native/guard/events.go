package guard

import (
	"strconv"

	"questchain/core/types"
	"questchain/crypto"
)

const (
	// EventTypeDecision is emitted when a guard records a decision.
	EventTypeDecision = "guard.decision"
	// EventTypeConsumed is emitted when a gated operation spends the approval.
	EventTypeConsumed = "guard.consumed"
)

func decisionEvent(module string, guard [20]byte, decision bool, combined bool) *types.Event {
	return &types.Event{
		Type: EventTypeDecision,
		Attributes: map[string]string{
			"module":   module,
			"guard":    crypto.FromRaw(guard).String(),
			"decision": strconv.FormatBool(decision),
			"combined": strconv.FormatBool(combined),
		},
	}
}

func consumedEvent(module string, operation string) *types.Event {
	return &types.Event{
		Type: EventTypeConsumed,
		Attributes: map[string]string{
			"module":    module,
			"operation": operation,
		},
	}
}
