package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitionsForwardOnly(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StateLoading))
	assert.True(t, StateLoading.CanTransition(StateStreaming))
	assert.True(t, StateStreaming.CanTransition(StateCompleted))
	assert.True(t, StatePending.CanTransition(StateCompleted))

	// No regressions.
	assert.False(t, StateCompleted.CanTransition(StateLoading))
	assert.False(t, StateStreaming.CanTransition(StatePending))
	assert.False(t, StateCompleted.CanTransition(StateStreaming))
}

func TestErrorReachableFromLoadingAndStreamingOnly(t *testing.T) {
	assert.True(t, StateLoading.CanTransition(StateError))
	assert.True(t, StateStreaming.CanTransition(StateError))
	assert.False(t, StatePending.CanTransition(StateError))
	assert.False(t, StateCompleted.CanTransition(StateError))

	// Error is terminal without an explicit regeneration.
	assert.False(t, StateError.CanTransition(StateLoading))
	assert.False(t, StateError.CanTransition(StateCompleted))
}

func TestWireStripsUIOnlyFields(t *testing.T) {
	dbID := uuid.New()
	turn := Turn{
		ClientID:   uuid.New(),
		DatabaseID: &dbID,
		Role:       RoleAssistant,
		Content:    "hello",
		State:      StateCompleted,
		Timestamp:  time.Now(),
	}

	wire := turn.Wire()
	assert.Equal(t, turn.ClientID, wire.ID)
	assert.Equal(t, RoleAssistant, wire.Role)
	assert.Equal(t, "hello", wire.Content)
}

func TestTurnFromMessage(t *testing.T) {
	msg := Message{
		ID:       uuid.New(),
		ClientID: uuid.New(),
		Role:     RoleUser,
		Content:  "hi",
	}

	turn := TurnFromMessage(msg)
	require.NotNil(t, turn.DatabaseID)
	assert.Equal(t, msg.ID, *turn.DatabaseID)
	assert.Equal(t, msg.ClientID, turn.ClientID)
	assert.Equal(t, StateCompleted, turn.State)
}
