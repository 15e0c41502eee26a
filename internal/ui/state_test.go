package ui

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitchat/chat-core/internal/types"
)

func newTurn(role types.Role, state types.TurnState) types.Turn {
	return types.Turn{ClientID: uuid.New(), Role: role, State: state}
}

func TestUpdateReplacesInPlace(t *testing.T) {
	s := NewChatState()
	a := newTurn(types.RoleUser, types.StateCompleted)
	b := newTurn(types.RoleAssistant, types.StateLoading)
	s.Append(a, b)

	ok := s.Update(b.ClientID, func(turn *types.Turn) {
		turn.Content = "partial"
	})
	require.True(t, ok)

	turns := s.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, a.ClientID, turns[0].ClientID)
	assert.Equal(t, "partial", turns[1].Content)
}

func TestUpdateUnknownIDReturnsFalse(t *testing.T) {
	s := NewChatState()
	assert.False(t, s.Update(uuid.New(), func(*types.Turn) {}))
}

func TestSetTurnStateRefusesRegression(t *testing.T) {
	s := NewChatState()
	turn := newTurn(types.RoleAssistant, types.StateCompleted)
	s.Append(turn)

	assert.False(t, s.SetTurnState(turn.ClientID, types.StateLoading))

	got, ok := s.Get(turn.ClientID)
	require.True(t, ok)
	assert.Equal(t, types.StateCompleted, got.State)
}

func TestRefusedTransitionStaysSilent(t *testing.T) {
	s := NewChatState()
	completed := newTurn(types.RoleAssistant, types.StateCompleted)
	loading := newTurn(types.RoleAssistant, types.StateLoading)
	s.Append(completed, loading)

	count := 0
	s.Subscribe(func() { count++ })

	assert.False(t, s.SetTurnState(completed.ClientID, types.StateLoading))
	assert.Equal(t, 0, count)

	assert.True(t, s.SetTurnState(loading.ClientID, types.StateStreaming))
	assert.Equal(t, 1, count)
}

func TestBeginRegenerationResetsState(t *testing.T) {
	s := NewChatState()
	turn := newTurn(types.RoleAssistant, types.StateCompleted)
	s.Append(turn)

	require.True(t, s.BeginRegeneration(turn.ClientID))
	got, _ := s.Get(turn.ClientID)
	assert.Equal(t, types.StateLoading, got.State)
}

func TestClearTypingIdempotent(t *testing.T) {
	s := NewChatState()

	notifications := 0
	s.Subscribe(func() { notifications++ })

	s.SetTyping()
	assert.True(t, s.Typing())

	s.ClearTyping()
	s.ClearTyping()
	s.ClearTyping()
	assert.False(t, s.Typing())

	// Set + one effective clear; redundant clears stay silent.
	assert.Equal(t, 2, notifications)
}

func TestSetDatabaseID(t *testing.T) {
	s := NewChatState()
	turn := newTurn(types.RoleAssistant, types.StateCompleted)
	s.Append(turn)

	dbID := uuid.New()
	s.SetDatabaseID(turn.ClientID, dbID)

	got, ok := s.Get(turn.ClientID)
	require.True(t, ok)
	require.NotNil(t, got.DatabaseID)
	assert.Equal(t, dbID, *got.DatabaseID)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := NewChatState()

	count := 0
	unsub := s.Subscribe(func() { count++ })

	s.Append(newTurn(types.RoleUser, types.StateCompleted))
	unsub()
	s.Append(newTurn(types.RoleUser, types.StateCompleted))

	assert.Equal(t, 1, count)
}
