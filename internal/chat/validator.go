package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbitchat/chat-core/internal/types"
)

// ValidatedSend is the turn pair materialized for one send: the user turn
// carrying the trimmed content and a placeholder assistant turn the reveal
// will fill in later.
type ValidatedSend struct {
	UserTurn      types.Turn
	AssistantTurn types.Turn
}

// RequestValidator checks send preconditions and constructs the turn pair.
// It is pure: it never touches shared state, the caller inserts the turns.
type RequestValidator struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// NewRequestValidator creates a validator using the real clock and uuid
// generator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{now: time.Now, newID: uuid.New}
}

// ValidateSend returns the materialized turn pair, or a *ValidationError
// naming the unmet precondition.
func (v *RequestValidator) ValidateSend(req types.SendRequest, authenticated bool) (*ValidatedSend, error) {
	content := strings.TrimSpace(req.UserContent)
	if content == "" {
		return nil, &ValidationError{Reason: "message content is empty"}
	}
	if !authenticated {
		return nil, &ValidationError{Reason: "no authenticated session"}
	}
	if req.Model == "" {
		return nil, &ValidationError{Reason: "no model selected"}
	}

	now := v.now()
	return &ValidatedSend{
		UserTurn: types.Turn{
			ClientID:  v.newID(),
			Role:      types.RoleUser,
			Content:   content,
			State:     types.StateCompleted,
			Timestamp: now,
		},
		AssistantTurn: types.Turn{
			ClientID:  v.newID(),
			Role:      types.RoleAssistant,
			State:     types.StatePending,
			Timestamp: now,
		},
	}, nil
}
