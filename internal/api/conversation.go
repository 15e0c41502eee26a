package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/orbitchat/chat-core/internal/storage/postgres"
	"github.com/orbitchat/chat-core/internal/types"
)

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Model string `json:"model"`
}

// ListConversationsRequest is the request body for listing conversations.
type ListConversationsRequest struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
	TotalCount    int                  `json:"total_count"`
}

// SelectModelRequest is the request body for changing a room's model.
type SelectModelRequest struct {
	Model string `json:"model"`
}

// RoomStateResponse is the observable UI state of a room.
type RoomStateResponse struct {
	RoomID uuid.UUID    `json:"room_id"`
	Turns  []types.Turn `json:"turns"`
	Typing bool         `json:"typing"`
}

// CreateConversation creates a new conversation.
func (s *Server) CreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	conv, err := s.convRepo.Create(c.Request().Context(), GetPublicKey(c), req.Model)
	if err != nil {
		s.logger.WithError(err).Error("failed to create conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create conversation"})
	}

	room := s.room(*conv.ID)
	room.SetModel(conv.Model)

	return c.JSON(http.StatusCreated, conv)
}

// ListConversations returns a paginated list of conversations.
func (s *Server) ListConversations(c echo.Context) error {
	var req ListConversationsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	// Default pagination
	if req.Take <= 0 {
		req.Take = 20
	}
	if req.Take > 100 {
		req.Take = 100
	}

	conversations, totalCount, err := s.convRepo.List(c.Request().Context(), GetPublicKey(c), req.Skip, req.Take)
	if err != nil {
		s.logger.WithError(err).Error("failed to list conversations")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list conversations"})
	}

	if conversations == nil {
		conversations = []types.Conversation{}
	}

	return c.JSON(http.StatusOK, ListConversationsResponse{
		Conversations: conversations,
		TotalCount:    totalCount,
	})
}

// GetConversation returns a conversation with its messages and hydrates the
// in-memory room state so later regenerations address stored rows by their
// database ids.
func (s *Server) GetConversation(c echo.Context) error {
	conv, room, err := s.loadRoom(c)
	if err != nil {
		return s.roomError(c, err)
	}

	msgs, err := s.msgRepo.GetByConversationID(c.Request().Context(), *conv.ID)
	if err != nil {
		s.logger.WithError(err).Error("failed to get messages")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get conversation"})
	}
	if msgs == nil {
		msgs = []types.Message{}
	}

	room.Hydrate(msgs)

	return c.JSON(http.StatusOK, types.ConversationWithMessages{
		Conversation: *conv,
		Messages:     msgs,
	})
}

// DeleteConversation archives a conversation (soft delete).
func (s *Server) DeleteConversation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	err = s.convRepo.Archive(c.Request().Context(), id, GetPublicKey(c))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		}
		s.logger.WithError(err).Error("failed to delete conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete conversation"})
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// SelectModel changes the model for a conversation. Model selection is
// room-scoped state and never blocks or waits on message flow.
func (s *Server) SelectModel(c echo.Context) error {
	conv, _, err := s.loadRoom(c)
	if err != nil {
		return s.roomError(c, err)
	}

	var req SelectModelRequest
	if err := c.Bind(&req); err != nil || req.Model == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "model is required"})
	}

	// The store's notification updates the in-memory room.
	if err := s.models.Select(c.Request().Context(), *conv.ID, req.Model); err != nil {
		s.logger.WithError(err).Error("failed to select model")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to select model"})
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// RoomState returns a snapshot of the room's observable UI state.
func (s *Server) RoomState(c echo.Context) error {
	conv, room, err := s.loadRoom(c)
	if err != nil {
		return s.roomError(c, err)
	}

	turns := room.State.Snapshot()
	if turns == nil {
		turns = []types.Turn{}
	}

	return c.JSON(http.StatusOK, RoomStateResponse{
		RoomID: *conv.ID,
		Turns:  turns,
		Typing: room.State.Typing(),
	})
}
