package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitchat/chat-core/internal/types"
)

// MessageRepository handles database operations for messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Upsert writes a message keyed by (conversation_id, role, client_id).
// Re-sending the same client id for the same room and role overwrites the
// content instead of creating a second row. The input message's ID and
// CreatedAt are backfilled with the stored values.
func (r *MessageRepository) Upsert(ctx context.Context, msg *types.Message) error {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (conversation_id, role, client_id, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT chat_messages_room_role_client_key
		DO UPDATE SET content = EXCLUDED.content, updated_at = now()
		RETURNING id, created_at`,
		uuidToPgtype(msg.ConversationID), string(msg.Role), uuidToPgtype(msg.ClientID), msg.Content,
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	msg.ID = pgtypeToUUID(id)
	msg.CreatedAt = pgtimestamptzToTime(createdAt)
	return nil
}

// UpdateContentByClientID rewrites the content of a message addressed by its
// client id, for turns that have not yet been read back from storage.
func (r *MessageRepository) UpdateContentByClientID(ctx context.Context, conversationID uuid.UUID, role types.Role, clientID uuid.UUID, content string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_messages
		SET content = $1, updated_at = now()
		WHERE conversation_id = $2 AND role = $3 AND client_id = $4`,
		content, uuidToPgtype(conversationID), string(role), uuidToPgtype(clientID))
	if err != nil {
		return fmt.Errorf("update message by client id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContentByID rewrites the content of a message addressed by its
// database id, for turns loaded from storage.
func (r *MessageRepository) UpdateContentByID(ctx context.Context, id uuid.UUID, content string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_messages
		SET content = $1, updated_at = now()
		WHERE id = $2`,
		content, uuidToPgtype(id))
	if err != nil {
		return fmt.Errorf("update message by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByConversationID returns all messages for a conversation, ordered by
// creation time.
func (r *MessageRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role::text, client_id, content, created_at, updated_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at`,
		uuidToPgtype(conversationID))
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// GetByClientID returns a single message by its idempotency key.
func (r *MessageRepository) GetByClientID(ctx context.Context, conversationID uuid.UUID, role types.Role, clientID uuid.UUID) (*types.Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, role::text, client_id, content, created_at, updated_at
		FROM chat_messages
		WHERE conversation_id = $1 AND role = $2 AND client_id = $3`,
		uuidToPgtype(conversationID), string(role), uuidToPgtype(clientID))

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func scanMessage(row pgx.Row) (*types.Message, error) {
	var (
		id        pgtype.UUID
		convID    pgtype.UUID
		role      string
		clientID  pgtype.UUID
		content   string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &role, &clientID, &content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &types.Message{
		ID:             pgtypeToUUID(id),
		ConversationID: pgtypeToUUID(convID),
		Role:           types.Role(role),
		ClientID:       pgtypeToUUID(clientID),
		Content:        content,
		CreatedAt:      pgtimestamptzToTime(createdAt),
		UpdatedAt:      pgtimestamptzToTime(updatedAt),
	}, nil
}
