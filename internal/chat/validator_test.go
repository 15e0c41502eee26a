package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitchat/chat-core/internal/types"
)

func TestValidateSendBuildsTurnPair(t *testing.T) {
	v := NewRequestValidator()

	out, err := v.ValidateSend(types.SendRequest{
		UserContent: "  Hello there  ",
		Model:       "gpt-4o",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, types.RoleUser, out.UserTurn.Role)
	assert.Equal(t, "Hello there", out.UserTurn.Content)
	assert.Equal(t, types.StateCompleted, out.UserTurn.State)

	assert.Equal(t, types.RoleAssistant, out.AssistantTurn.Role)
	assert.Equal(t, types.StatePending, out.AssistantTurn.State)
	assert.Empty(t, out.AssistantTurn.Content)

	assert.NotEqual(t, out.UserTurn.ClientID, out.AssistantTurn.ClientID)
	assert.False(t, out.UserTurn.Timestamp.IsZero())
}

func TestValidateSendRejections(t *testing.T) {
	v := NewRequestValidator()

	cases := []struct {
		name          string
		req           types.SendRequest
		authenticated bool
		wantReason    string
	}{
		{"empty content", types.SendRequest{UserContent: "   \t  ", Model: "gpt-4o"}, true, "message content is empty"},
		{"no session", types.SendRequest{UserContent: "hi", Model: "gpt-4o"}, false, "no authenticated session"},
		{"no model", types.SendRequest{UserContent: "hi"}, true, "no model selected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := v.ValidateSend(tc.req, tc.authenticated)
			assert.Nil(t, out)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.wantReason, validationErr.Reason)
		})
	}
}
