package types

import (
	"time"

	"github.com/google/uuid"
)

// Message is the durable record of a turn. ID is the DatabaseID assigned by
// storage; ClientID is the caller-generated idempotency key. The pair
// (ConversationID, Role, ClientID) is unique, so re-sending the same client
// id overwrites instead of duplicating.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	ClientID       uuid.UUID `json:"client_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TurnFromMessage rebuilds the UI form of a stored message. Loaded turns
// carry both identifiers and arrive already Completed.
func TurnFromMessage(m Message) Turn {
	id := m.ID
	return Turn{
		ClientID:   m.ClientID,
		DatabaseID: &id,
		Role:       m.Role,
		Content:    m.Content,
		State:      StateCompleted,
		Timestamp:  m.CreatedAt,
	}
}

// ConversationWithMessages includes a conversation and its messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}
