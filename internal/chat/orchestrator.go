package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/completion"
	"github.com/orbitchat/chat-core/internal/retry"
	"github.com/orbitchat/chat-core/internal/session"
	"github.com/orbitchat/chat-core/internal/types"
)

const persistTimeout = 30 * time.Second

// Completer abstracts the completion endpoint client.
type Completer interface {
	Complete(ctx context.Context, accessToken string, req *completion.Request) (*types.NormalizedResponse, error)
}

// SendResult is the terminal success state of one send.
type SendResult struct {
	RoomID        uuid.UUID
	UserTurn      types.Turn
	AssistantTurn types.Turn
	Response      *types.NormalizedResponse
}

// Orchestrator sequences the message lifecycle: validation, optimistic UI
// insert, room provisioning, the retried completion call, response
// validation, the animated reveal, and detached persistence. One instance
// serves all rooms; everything per-conversation lives on the Room.
type Orchestrator struct {
	validator *RequestValidator
	completer Completer
	gateway   *Gateway
	policy    *retry.Policy
	session   session.Provider
	logger    *logrus.Logger

	detached sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(completer Completer, gateway *Gateway, policy *retry.Policy, sess session.Provider, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		validator: NewRequestValidator(),
		completer: completer,
		gateway:   gateway,
		policy:    policy,
		session:   sess,
		logger:    logger,
	}
}

// Send runs one user turn through the full lifecycle. On success the
// assistant turn in room.State is Completed with the revealed text and the
// turn pair is being flushed in the background; on failure the assistant
// turn (if it was created) is in Error state and the typing indicator is
// down either way.
func (o *Orchestrator) Send(ctx context.Context, room *Room, publicKey string, req types.SendRequest) (*SendResult, error) {
	// Correlation id for logs only; not any turn's client id.
	requestID := uuid.New()
	log := o.logger.WithField("request_id", requestID)

	// The typing indicator must come down exactly once on every exit path,
	// including validation failures that never create a turn.
	defer room.Animator.ClearTyping()

	v, err := o.validator.ValidateSend(req, o.session.Authenticated())
	if err != nil {
		log.WithError(err).Debug("send rejected")
		return nil, err
	}

	room.Animator.UpdateUIState(v.UserTurn, v.AssistantTurn)

	roomID, err := o.gateway.CreateRoomIfNeeded(ctx, req.RoomID, publicKey, req.Model, requestID)
	if err != nil {
		room.State.SetTurnState(v.AssistantTurn.ClientID, types.StateError)
		return nil, err
	}
	room.SetID(roomID)

	resp, err := o.complete(ctx, completionInput{
		roomID:          roomID,
		history:         append(types.WireHistory(req.History), v.UserTurn.Wire()),
		model:           req.Model,
		clientMessageID: v.AssistantTurn.ClientID,
		searchQuestion:  searchQuestion(req),
	})
	if err != nil {
		room.State.SetTurnState(v.AssistantTurn.ClientID, types.StateError)
		log.WithError(err).WithField("room_id", roomID).Error("send failed")
		return nil, err
	}

	if err := room.Animator.AnimateResponse(ctx, v.AssistantTurn.ClientID, resp.Content); err != nil {
		room.State.SetTurnState(v.AssistantTurn.ClientID, types.StateError)
		return nil, err
	}
	room.State.SetTurnState(v.AssistantTurn.ClientID, types.StateCompleted)

	o.persistDetached(room, roomID, v.UserTurn, v.AssistantTurn, resp.Content, requestID)

	userTurn, _ := room.State.Get(v.UserTurn.ClientID)
	assistantTurn, _ := room.State.Get(v.AssistantTurn.ClientID)
	return &SendResult{
		RoomID:        roomID,
		UserTurn:      userTurn,
		AssistantTurn: assistantTurn,
		Response:      resp,
	}, nil
}

type completionInput struct {
	roomID          uuid.UUID
	history         []types.WireTurn
	model           string
	clientMessageID uuid.UUID
	searchQuestion  string
}

// complete runs the retried network call and validates the response body.
// The client message id is fixed before the first attempt so every retry
// carries the same idempotency key.
func (o *Orchestrator) complete(ctx context.Context, in completionInput) (*types.NormalizedResponse, error) {
	token, err := o.session.Token(ctx)
	if err != nil {
		return nil, &ValidationError{Reason: "no authenticated session"}
	}

	creq := &completion.Request{
		RoomID:          &in.roomID,
		Messages:        in.history,
		Model:           in.model,
		ClientMessageID: in.clientMessageID,
		SkipPersistence: true,
		Question:        in.searchQuestion,
	}

	resp, err := retry.Result(ctx, o.policy, "completion", func(ctx context.Context) (*types.NormalizedResponse, error) {
		return o.completer.Complete(ctx, token, creq)
	})
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if strings.TrimSpace(resp.Content) == "" {
		return nil, &ResponseFormatError{Detail: "response has no content"}
	}
	return resp, nil
}

// persistDetached flushes the turn pair without blocking the success path.
// Failures are caught, logged, and discarded: the user already has the
// response, a storage hiccup must not take it away.
func (o *Orchestrator) persistDetached(room *Room, roomID uuid.UUID, userTurn, assistantTurn types.Turn, fullContent string, requestID uuid.UUID) {
	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.WithField("panic", r).Error("persistence task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		res, err := o.gateway.PersistMessages(ctx, roomID, userTurn, assistantTurn, fullContent)
		if err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"room_id":    roomID,
				"request_id": requestID,
			}).Error("failed to persist turn pair")
			return
		}

		room.State.SetDatabaseID(userTurn.ClientID, res.UserID)
		room.State.SetDatabaseID(assistantTurn.ClientID, res.AssistantID)
	}()
}

// Drain blocks until all detached persistence tasks finish, for shutdown.
func (o *Orchestrator) Drain() {
	o.detached.Wait()
}

func searchQuestion(req types.SendRequest) string {
	if !req.SearchMode {
		return ""
	}
	return strings.TrimSpace(req.UserContent)
}
