package api

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/chat"
	"github.com/orbitchat/chat-core/internal/modelpref"
	"github.com/orbitchat/chat-core/internal/service"
	"github.com/orbitchat/chat-core/internal/types"
)

// ConversationRepo is the conversation storage surface the handlers use.
type ConversationRepo interface {
	Create(ctx context.Context, publicKey, model string) (*types.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID, publicKey string) (*types.Conversation, error)
	List(ctx context.Context, publicKey string, skip, take int) ([]types.Conversation, int, error)
	Archive(ctx context.Context, id uuid.UUID, publicKey string) error
}

// MessageRepo is the message storage surface the handlers use.
type MessageRepo interface {
	GetByConversationID(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error)
}

// Server holds API dependencies.
type Server struct {
	authService  *service.AuthService
	convRepo     ConversationRepo
	msgRepo      MessageRepo
	orchestrator *chat.Orchestrator
	rooms        *chat.Registry
	models       *modelpref.Store
	defaultModel string
	logger       *logrus.Logger

	mu       sync.Mutex
	observed map[uuid.UUID]struct{}
}

// NewServer creates a new API server.
func NewServer(
	authService *service.AuthService,
	convRepo ConversationRepo,
	msgRepo MessageRepo,
	orchestrator *chat.Orchestrator,
	rooms *chat.Registry,
	models *modelpref.Store,
	defaultModel string,
	logger *logrus.Logger,
) *Server {
	return &Server{
		authService:  authService,
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		orchestrator: orchestrator,
		rooms:        rooms,
		models:       models,
		defaultModel: defaultModel,
		logger:       logger,
		observed:     make(map[uuid.UUID]struct{}),
	}
}

// room returns the in-memory room for id and keeps its model in sync with
// selections made through the model store.
func (s *Server) room(id uuid.UUID) *chat.Room {
	room := s.rooms.Room(id)
	s.observeModel(id, room)
	return room
}

// observeModel wires model-store notifications into the room, once per room
// for the server lifetime.
func (s *Server) observeModel(id uuid.UUID, room *chat.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observed[id]; ok {
		return
	}
	s.observed[id] = struct{}{}
	s.models.Subscribe(id, room.SetModel)
}
