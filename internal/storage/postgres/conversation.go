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

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("not found")

// ConversationRepository handles database operations for conversations.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*types.Conversation, error) {
	var (
		id         pgtype.UUID
		publicKey  string
		model      string
		title      pgtype.Text
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
		archivedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &publicKey, &model, &title, &createdAt, &updatedAt, &archivedAt); err != nil {
		return nil, err
	}
	return &types.Conversation{
		ID:         pgtypeToUUIDPtr(id),
		PublicKey:  publicKey,
		Model:      model,
		Title:      pgtextToStringPtr(title),
		CreatedAt:  pgtimestamptzToTime(createdAt),
		UpdatedAt:  pgtimestamptzToTime(updatedAt),
		ArchivedAt: pgtimestamptzToTimePtr(archivedAt),
	}, nil
}

// Create creates a new conversation for the given public key with the
// selected model.
func (r *ConversationRepository) Create(ctx context.Context, publicKey, model string) (*types.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_conversations (public_key, model)
		VALUES ($1, $2)
		RETURNING id, public_key, model, title, created_at, updated_at, archived_at`,
		publicKey, model)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetByID returns a conversation if it exists and belongs to the given public key.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID, publicKey string) (*types.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, public_key, model, title, created_at, updated_at, archived_at
		FROM chat_conversations
		WHERE id = $1 AND public_key = $2 AND archived_at IS NULL`,
		uuidToPgtype(id), publicKey)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// List returns paginated conversations for a public key.
func (r *ConversationRepository) List(ctx context.Context, publicKey string, skip, take int) ([]types.Conversation, int, error) {
	var totalCount int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM chat_conversations
		WHERE public_key = $1 AND archived_at IS NULL`,
		publicKey).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, public_key, model, title, created_at, updated_at, archived_at
		FROM chat_conversations
		WHERE public_key = $1 AND archived_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		publicKey, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}

	return convs, totalCount, nil
}

// Archive soft-deletes a conversation by setting archived_at.
func (r *ConversationRepository) Archive(ctx context.Context, id uuid.UUID, publicKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_conversations
		SET archived_at = now(), updated_at = now()
		WHERE id = $1 AND public_key = $2 AND archived_at IS NULL`,
		uuidToPgtype(id), publicKey)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateModel changes the model selection for a conversation.
func (r *ConversationRepository) UpdateModel(ctx context.Context, id uuid.UUID, model string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_conversations
		SET model = $1, updated_at = now()
		WHERE id = $2 AND archived_at IS NULL`,
		model, uuidToPgtype(id))
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetModel returns the model selected for a conversation.
func (r *ConversationRepository) GetModel(ctx context.Context, id uuid.UUID) (string, error) {
	var model string
	err := r.pool.QueryRow(ctx, `
		SELECT model FROM chat_conversations
		WHERE id = $1 AND archived_at IS NULL`,
		uuidToPgtype(id)).Scan(&model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get model: %w", err)
	}
	return model, nil
}

// Touch bumps updated_at, used after message writes so listing order tracks
// activity.
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chat_conversations SET updated_at = now() WHERE id = $1`,
		uuidToPgtype(id))
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}
