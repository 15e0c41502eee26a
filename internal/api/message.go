package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/orbitchat/chat-core/internal/chat"
	"github.com/orbitchat/chat-core/internal/storage/postgres"
	"github.com/orbitchat/chat-core/internal/types"
)

// SendMessageRequest is the request body for sending a message. RoomID is
// optional: the first send of a fresh conversation provisions one.
type SendMessageRequest struct {
	RoomID     *uuid.UUID `json:"room_id,omitempty"`
	Content    string     `json:"content"`
	Model      string     `json:"model,omitempty"`
	SearchMode bool       `json:"search_mode"`
}

// SendMessageResponse is the response for sending a message.
type SendMessageResponse struct {
	RoomID        uuid.UUID        `json:"room_id"`
	UserTurn      types.Turn       `json:"user_turn"`
	AssistantTurn types.Turn       `json:"assistant_turn"`
	Citations     []types.Citation `json:"citations,omitempty"`
	TimeWarning   string           `json:"time_warning,omitempty"`
}

// RegenerateMessageRequest is the request body for regenerating a turn.
type RegenerateMessageRequest struct {
	RoomID          uuid.UUID `json:"room_id"`
	OverrideContent *string   `json:"override_content,omitempty"`
}

// SendMessage handles POST /chat/messages.
func (s *Server) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	publicKey := GetPublicKey(c)
	ctx := c.Request().Context()

	var room *chat.Room
	model := req.Model
	if req.RoomID != nil {
		conv, err := s.convRepo.GetByID(ctx, *req.RoomID, publicKey)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			}
			s.logger.WithError(err).Error("failed to get conversation")
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send message"})
		}
		room = s.room(*req.RoomID)
		// A cold room would put an empty history on the wire and lose the
		// conversation's prior context.
		if err := s.hydrateIfCold(ctx, room, *req.RoomID); err != nil {
			s.logger.WithError(err).Error("failed to load history")
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send message"})
		}
		if model == "" {
			model = s.resolveModel(ctx, *req.RoomID, conv.Model)
		}
	} else {
		room = s.rooms.NewRoom()
	}
	if model == "" {
		model = s.defaultModel
	}

	result, err := s.orchestrator.Send(ctx, room, publicKey, types.SendRequest{
		RoomID:      req.RoomID,
		UserContent: req.Content,
		History:     historyBefore(room),
		Model:       model,
		SearchMode:  req.SearchMode,
	})
	if err != nil {
		return s.sendError(c, err)
	}

	// A fresh room now has an id; register it for subsequent requests.
	if req.RoomID == nil {
		s.rooms.Adopt(room, result.RoomID)
		room.SetModel(model)
		s.observeModel(result.RoomID, room)
	}

	return c.JSON(http.StatusOK, SendMessageResponse{
		RoomID:        result.RoomID,
		UserTurn:      result.UserTurn,
		AssistantTurn: result.AssistantTurn,
		Citations:     result.Response.Citations,
		TimeWarning:   result.Response.TimeWarning,
	})
}

// RegenerateMessage handles POST /chat/messages/:clientId/regenerate.
func (s *Server) RegenerateMessage(c echo.Context) error {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
	}

	var req RegenerateMessageRequest
	if err := c.Bind(&req); err != nil || req.RoomID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_id is required"})
	}

	publicKey := GetPublicKey(c)
	if _, err := s.convRepo.GetByID(c.Request().Context(), req.RoomID, publicKey); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		}
		s.logger.WithError(err).Error("failed to get conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to regenerate message"})
	}

	room := s.room(req.RoomID)
	if err := s.hydrateIfCold(c.Request().Context(), room, req.RoomID); err != nil {
		s.logger.WithError(err).Error("failed to load history")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to regenerate message"})
	}

	err = s.orchestrator.RegenerateMessage(c.Request().Context(), room, types.RegenerateRequest{
		TargetClientID:      clientID,
		OverrideUserContent: req.OverrideContent,
	})
	if err != nil {
		if errors.Is(err, chat.ErrTargetNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		}
		return s.sendError(c, err)
	}

	turn, _ := room.State.Get(clientID)
	return c.JSON(http.StatusOK, turn)
}

// sendError maps lifecycle errors onto HTTP statuses. Validation problems
// are the caller's fault; exhausted network retries and malformed responses
// surface as bad-gateway because the upstream completion service failed us.
func (s *Server) sendError(c echo.Context, err error) error {
	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Error()})
	}

	var formatErr *chat.ResponseFormatError
	if errors.As(err, &formatErr) {
		s.logger.WithError(err).Error("completion response malformed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "completion service returned an unusable response"})
	}

	var netErr *chat.NetworkError
	if errors.As(err, &netErr) {
		s.logger.WithError(err).Error("completion request failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "completion service unavailable"})
	}

	s.logger.WithError(err).Error("failed to process message")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process message"})
}

// loadRoom parses :id, checks ownership, and returns the conversation with
// its in-memory room.
func (s *Server) loadRoom(c echo.Context) (*types.Conversation, *chat.Room, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, nil, errBadRoomID
	}

	conv, err := s.convRepo.GetByID(c.Request().Context(), id, GetPublicKey(c))
	if err != nil {
		return nil, nil, err
	}

	room := s.room(id)
	if room.Model() == "" {
		room.SetModel(conv.Model)
	}
	return conv, room, nil
}

// hydrateIfCold reloads stored turns into a room whose in-memory list is
// empty, so history and database ids survive a process restart.
func (s *Server) hydrateIfCold(ctx context.Context, room *chat.Room, id uuid.UUID) error {
	if len(room.State.Snapshot()) > 0 {
		return nil
	}
	msgs, err := s.msgRepo.GetByConversationID(ctx, id)
	if err != nil {
		return err
	}
	room.Hydrate(msgs)
	return nil
}

// resolveModel reads the room's selection through the model store, which
// consults the cache before the conversation row; fallback is the value
// already loaded from that row.
func (s *Server) resolveModel(ctx context.Context, roomID uuid.UUID, fallback string) string {
	model, err := s.models.Load(ctx, roomID)
	if err != nil || model == "" {
		return fallback
	}
	return model
}

var errBadRoomID = errors.New("invalid conversation id")

func (s *Server) roomError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errBadRoomID):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	case errors.Is(err, postgres.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
	default:
		s.logger.WithError(err).Error("failed to load conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// historyBefore snapshots the turns already in the room, the context the
// completion call sees ahead of the new user turn.
func historyBefore(room *chat.Room) []types.Turn {
	return room.State.Snapshot()
}
