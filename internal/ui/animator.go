package ui

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/types"
)

// reveal tracks one in-flight animation. err is written before done closes,
// so waiters observing done see the reveal's outcome.
type reveal struct {
	content string
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Animator reveals completed text into a ChatState at a fixed cadence,
// decoupled from network timing. Reveals are keyed by message id: reveals
// for different messages run concurrently, a reveal for the same id and the
// same content is never restarted, and a reveal for the same id with
// different content replaces the one in progress.
type Animator struct {
	state    *ChatState
	interval time.Duration
	chunk    int
	logger   *logrus.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*reveal
}

// NewAnimator creates an Animator revealing chunk runes every interval.
func NewAnimator(state *ChatState, interval time.Duration, chunk int, logger *logrus.Logger) *Animator {
	if chunk < 1 {
		chunk = 1
	}
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Animator{
		state:    state,
		interval: interval,
		chunk:    chunk,
		logger:   logger,
		active:   make(map[uuid.UUID]*reveal),
	}
}

// UpdateUIState inserts the user/assistant pair optimistically, marks the
// assistant turn Loading, and raises the typing indicator.
func (a *Animator) UpdateUIState(userTurn, assistantTurn types.Turn) {
	assistantTurn.State = types.StateLoading
	a.state.Append(userTurn, assistantTurn)
	a.state.SetTyping()
}

// ClearTyping idempotently lowers the typing indicator.
func (a *Animator) ClearTyping() {
	a.state.ClearTyping()
}

// AnimateResponse reveals fullContent into the turn addressed by messageID
// and blocks until the reveal finishes or ctx is cancelled. If the same
// content is already mid-reveal for this id it waits on that reveal and
// shares its outcome instead of restarting; different content cancels the
// stale reveal first.
func (a *Animator) AnimateResponse(ctx context.Context, messageID uuid.UUID, fullContent string) (err error) {
	a.mu.Lock()
	if r, ok := a.active[messageID]; ok {
		if r.content == fullContent {
			a.mu.Unlock()
			select {
			case <-r.done:
				return r.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		a.logger.WithField("message_id", messageID).Debug("replacing in-flight reveal")
		r.cancel()
	}

	revealCtx, cancel := context.WithCancel(ctx)
	r := &reveal{content: fullContent, cancel: cancel, done: make(chan struct{})}
	a.active[messageID] = r
	a.mu.Unlock()

	defer func() {
		cancel()
		r.err = err
		close(r.done)
		a.mu.Lock()
		if a.active[messageID] == r {
			delete(a.active, messageID)
		}
		a.mu.Unlock()
	}()

	return a.run(revealCtx, messageID, fullContent)
}

func (a *Animator) run(ctx context.Context, messageID uuid.UUID, fullContent string) error {
	a.state.SetTurnState(messageID, types.StateStreaming)

	runes := []rune(fullContent)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for shown := 0; shown < len(runes); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			shown += a.chunk
			if shown > len(runes) {
				shown = len(runes)
			}
			partial := string(runes[:shown])
			a.state.Update(messageID, func(t *types.Turn) {
				t.Content = partial
			})
		}
	}

	// Zero-length content still lands as an explicit (empty) update.
	a.state.Update(messageID, func(t *types.Turn) {
		t.Content = fullContent
	})
	return nil
}
