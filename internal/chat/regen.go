package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/types"
)

// RegenerateMessage re-runs the completion for an existing assistant turn.
// At most one regeneration runs per message: a call that loses the
// check-and-mark race is a silent no-op, not an error. The network history
// is every turn strictly before the target; when overrideContent is set and
// the immediately preceding turn is a user turn, its content is substituted
// in the built history without mutating the caller's slice.
func (o *Orchestrator) RegenerateMessage(ctx context.Context, room *Room, req types.RegenerateRequest) error {
	history := req.History
	if history == nil {
		history = room.State.Snapshot()
	}

	idx := -1
	for i, t := range history {
		if t.ClientID == req.TargetClientID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrTargetNotFound
	}
	target := history[idx]

	if !room.inflight.tryAcquire(target.ClientID) {
		o.logger.WithField("client_id", target.ClientID).Debug("regeneration already in flight, ignoring")
		return nil
	}
	defer room.inflight.release(target.ClientID)

	log := o.logger.WithFields(logrus.Fields{
		"client_id":  target.ClientID,
		"request_id": uuid.New(),
	})

	room.State.BeginRegeneration(target.ClientID)

	wire := types.WireHistory(history[:idx])

	// Optional rewrite of the edited prior user turn. A non-user preceding
	// turn (or no preceding turn at all) skips the substitution.
	var editedUser *types.Turn
	if req.OverrideUserContent != nil && idx > 0 && history[idx-1].Role == types.RoleUser {
		wire[idx-1].Content = *req.OverrideUserContent
		prev := history[idx-1]
		editedUser = &prev
	}

	roomID := room.ID()
	if roomID == nil {
		room.State.SetTurnState(target.ClientID, types.StateError)
		return &ValidationError{Reason: "room not provisioned"}
	}

	resp, err := o.complete(ctx, completionInput{
		roomID:          *roomID,
		history:         wire,
		model:           room.Model(),
		clientMessageID: target.ClientID,
	})
	if err != nil {
		room.State.SetTurnState(target.ClientID, types.StateError)
		log.WithError(err).Error("regeneration failed")
		return err
	}

	if err := room.Animator.AnimateResponse(ctx, target.ClientID, resp.Content); err != nil {
		room.State.SetTurnState(target.ClientID, types.StateError)
		return err
	}
	room.State.SetTurnState(target.ClientID, types.StateCompleted)

	if editedUser != nil {
		override := *req.OverrideUserContent
		room.State.Update(editedUser.ClientID, func(t *types.Turn) {
			t.Content = override
		})
	}

	o.persistRegenDetached(*roomID, target, editedUser, req.OverrideUserContent, resp.Content, log)
	return nil
}

// persistRegenDetached writes the regenerated content (and the edited user
// turn when it originated from storage) using whichever identifier each
// turn currently holds. Same error boundary as the send path: log and drop.
func (o *Orchestrator) persistRegenDetached(roomID uuid.UUID, target types.Turn, editedUser *types.Turn, overrideContent *string, fullContent string, log *logrus.Entry) {
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

		if err := o.gateway.UpdateTurnContent(ctx, roomID, target, fullContent); err != nil {
			log.WithError(err).Error("failed to persist regenerated turn")
		}

		if editedUser != nil && editedUser.DatabaseID != nil && overrideContent != nil {
			if err := o.gateway.UpdateTurnContent(ctx, roomID, *editedUser, *overrideContent); err != nil {
				log.WithError(err).Error("failed to persist edited user turn")
			}
		}
	}()
}
