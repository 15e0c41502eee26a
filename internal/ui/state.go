// Package ui holds the shared in-memory view of a conversation: the ordered
// turn list the rendering layer observes, and the driver that reveals
// completed text into it. The list is the source of truth for what the user
// sees; durable storage converges to it asynchronously.
package ui

import (
	"sync"

	"github.com/google/uuid"

	"github.com/orbitchat/chat-core/internal/types"
)

// ChatState is the ordered turn list for one room, plus the room-global
// typing indicator. Updates are replace-in-place keyed by client or
// database id; observers are notified after every mutation.
type ChatState struct {
	mu     sync.Mutex
	turns  []types.Turn
	typing bool

	subs    map[int]func()
	nextSub int
}

// NewChatState creates an empty ChatState.
func NewChatState() *ChatState {
	return &ChatState{subs: make(map[int]func())}
}

// Subscribe registers fn to run after every state change and returns an
// unsubscribe function.
func (s *ChatState) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify runs subscribers outside the lock.
func (s *ChatState) notify(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

func (s *ChatState) subscribers() []func() {
	out := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// Append adds turns to the end of the list.
func (s *ChatState) Append(turns ...types.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turns...)
	subs := s.subscribers()
	s.mu.Unlock()
	s.notify(subs)
}

// ReplaceAll swaps the whole list, used on history reload.
func (s *ChatState) ReplaceAll(turns []types.Turn) {
	s.mu.Lock()
	s.turns = append([]types.Turn(nil), turns...)
	subs := s.subscribers()
	s.mu.Unlock()
	s.notify(subs)
}

// Snapshot returns a copy of the current turn list.
func (s *ChatState) Snapshot() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Turn(nil), s.turns...)
}

// Get returns the turn with the given client id.
func (s *ChatState) Get(clientID uuid.UUID) (types.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.ClientID == clientID {
			return t, true
		}
	}
	return types.Turn{}, false
}

// Update applies fn to the turn with the given client id in place.
// It reports whether the turn was found.
func (s *ChatState) Update(clientID uuid.UUID, fn func(*types.Turn)) bool {
	s.mu.Lock()
	found := false
	for i := range s.turns {
		if s.turns[i].ClientID == clientID {
			fn(&s.turns[i])
			found = true
			break
		}
	}
	subs := s.subscribers()
	s.mu.Unlock()
	if found {
		s.notify(subs)
	}
	return found
}

// SetTurnState moves a turn to next if the lifecycle allows it; invalid
// transitions are dropped so the observed sequence never regresses. A
// dropped transition changes nothing and stays silent to subscribers.
func (s *ChatState) SetTurnState(clientID uuid.UUID, next types.TurnState) bool {
	s.mu.Lock()
	applied := false
	for i := range s.turns {
		if s.turns[i].ClientID == clientID {
			if s.turns[i].State.CanTransition(next) {
				s.turns[i].State = next
				applied = true
			}
			break
		}
	}
	var subs []func()
	if applied {
		subs = s.subscribers()
	}
	s.mu.Unlock()
	s.notify(subs)
	return applied
}

// BeginRegeneration resets a turn to Loading. This is the one sanctioned
// backward move: an explicit regeneration event.
func (s *ChatState) BeginRegeneration(clientID uuid.UUID) bool {
	return s.Update(clientID, func(t *types.Turn) {
		t.State = types.StateLoading
	})
}

// SetDatabaseID backfills the storage id once a turn has been flushed.
func (s *ChatState) SetDatabaseID(clientID, databaseID uuid.UUID) {
	s.Update(clientID, func(t *types.Turn) {
		id := databaseID
		t.DatabaseID = &id
	})
}

// SetTyping raises the room-global typing indicator.
func (s *ChatState) SetTyping() {
	s.mu.Lock()
	s.typing = true
	subs := s.subscribers()
	s.mu.Unlock()
	s.notify(subs)
}

// ClearTyping lowers the typing indicator. Idempotent; safe on every exit
// path including failures before any turn was created.
func (s *ChatState) ClearTyping() {
	s.mu.Lock()
	changed := s.typing
	s.typing = false
	subs := s.subscribers()
	s.mu.Unlock()
	if changed {
		s.notify(subs)
	}
}

// Typing reports the indicator state.
func (s *ChatState) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}
