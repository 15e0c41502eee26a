package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/types"
)

// ConversationStore is the durable side of room provisioning.
type ConversationStore interface {
	Create(ctx context.Context, publicKey, model string) (*types.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

// MessageStore is the durable side of turn persistence.
type MessageStore interface {
	Upsert(ctx context.Context, msg *types.Message) error
	UpdateContentByClientID(ctx context.Context, conversationID uuid.UUID, role types.Role, clientID uuid.UUID, content string) error
	UpdateContentByID(ctx context.Context, id uuid.UUID, content string) error
}

// PersistResult carries the database ids assigned to a flushed turn pair.
type PersistResult struct {
	UserID      uuid.UUID
	AssistantID uuid.UUID
}

// Gateway writes conversations and turns to durable storage. Storage is an
// asynchronously-converging replica of the UI list: writes here never block
// or roll back what the user already sees.
type Gateway struct {
	convs  ConversationStore
	msgs   MessageStore
	logger *logrus.Logger
}

// NewGateway creates a persistence gateway.
func NewGateway(convs ConversationStore, msgs MessageStore, logger *logrus.Logger) *Gateway {
	return &Gateway{convs: convs, msgs: msgs, logger: logger}
}

// CreateRoomIfNeeded provisions a conversation when roomID is nil and
// returns the id to address from here on. An existing id passes through
// unchanged. This is the one synchronous persistence step: the network call
// needs the id in its payload.
func (g *Gateway) CreateRoomIfNeeded(ctx context.Context, roomID *uuid.UUID, publicKey, model string, requestID uuid.UUID) (uuid.UUID, error) {
	if roomID != nil {
		return *roomID, nil
	}

	conv, err := g.convs.Create(ctx, publicKey, model)
	if err != nil {
		return uuid.Nil, fmt.Errorf("provision room: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"room_id":    conv.ID,
		"request_id": requestID,
	}).Info("provisioned new room")
	return *conv.ID, nil
}

// PersistMessages flushes the user/assistant pair with idempotent upserts
// keyed (room, role, client id). Repeating the call with the same keys
// overwrites rather than duplicating, so write order across retries is
// commutative.
func (g *Gateway) PersistMessages(ctx context.Context, roomID uuid.UUID, userTurn, assistantTurn types.Turn, fullContent string) (*PersistResult, error) {
	userMsg := &types.Message{
		ConversationID: roomID,
		Role:           types.RoleUser,
		ClientID:       userTurn.ClientID,
		Content:        userTurn.Content,
	}
	if err := g.msgs.Upsert(ctx, userMsg); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	assistantMsg := &types.Message{
		ConversationID: roomID,
		Role:           types.RoleAssistant,
		ClientID:       assistantTurn.ClientID,
		Content:        fullContent,
	}
	if err := g.msgs.Upsert(ctx, assistantMsg); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	if err := g.convs.Touch(ctx, roomID); err != nil {
		g.logger.WithError(err).WithField("room_id", roomID).Warn("failed to touch conversation")
	}

	return &PersistResult{UserID: userMsg.ID, AssistantID: assistantMsg.ID}, nil
}

// UpdateTurnContent rewrites a stored turn after regeneration, addressing it
// by database id when the turn was loaded from storage and by client id when
// it only exists from this session's flush.
func (g *Gateway) UpdateTurnContent(ctx context.Context, roomID uuid.UUID, turn types.Turn, content string) error {
	var err error
	if turn.DatabaseID != nil {
		err = g.msgs.UpdateContentByID(ctx, *turn.DatabaseID, content)
	} else {
		err = g.msgs.UpdateContentByClientID(ctx, roomID, turn.Role, turn.ClientID, content)
	}
	if err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}
