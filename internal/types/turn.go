package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnState represents a turn's position in its lifecycle.
type TurnState string

const (
	StatePending   TurnState = "pending"
	StateLoading   TurnState = "loading"
	StateStreaming TurnState = "streaming"
	StateCompleted TurnState = "completed"
	StateError     TurnState = "error"
)

// stateRank orders the forward-only lifecycle. Error is reachable from
// Loading or Streaming; nothing moves past Error without a new regeneration.
var stateRank = map[TurnState]int{
	StatePending:   0,
	StateLoading:   1,
	StateStreaming: 2,
	StateCompleted: 3,
}

// CanTransition reports whether a turn may move from s to next.
func (s TurnState) CanTransition(next TurnState) bool {
	if next == StateError {
		return s == StateLoading || s == StateStreaming
	}
	from, ok := stateRank[s]
	if !ok {
		// Error is terminal until an explicit regeneration resets the turn.
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Turn is a single message in a conversation. ClientID is generated by the
// caller and stays stable across retries and regenerations; DatabaseID is
// assigned by durable storage once the turn is flushed.
type Turn struct {
	ClientID   uuid.UUID  `json:"client_id"`
	DatabaseID *uuid.UUID `json:"database_id,omitempty"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	State      TurnState  `json:"state"`
	Timestamp  time.Time  `json:"timestamp"`
}

// WireTurn is the reduced turn form sent to the completion endpoint.
// UI-only fields are stripped so they cannot influence the prompt.
type WireTurn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	ID      uuid.UUID `json:"id"`
}

// Wire returns the network form of the turn.
func (t Turn) Wire() WireTurn {
	return WireTurn{Role: t.Role, Content: t.Content, ID: t.ClientID}
}

// WireHistory reduces a turn slice to its network form.
func WireHistory(turns []Turn) []WireTurn {
	wire := make([]WireTurn, len(turns))
	for i, t := range turns {
		wire[i] = t.Wire()
	}
	return wire
}
