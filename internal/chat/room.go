package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/types"
	"github.com/orbitchat/chat-core/internal/ui"
)

// Room bundles everything that is per-conversation: the shared UI state, the
// animator that writes into it, the selected model, and the in-flight
// regeneration markers. The id stays nil until the first successful send
// provisions one.
type Room struct {
	State    *ui.ChatState
	Animator *ui.Animator

	mu       sync.Mutex
	id       *uuid.UUID
	model    string
	inflight inflightSet
}

// ID returns the provisioned room id, or nil.
func (r *Room) ID() *uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// SetID records the provisioned id.
func (r *Room) SetID(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = &id
}

// Model returns the room's selected model.
func (r *Room) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// SetModel changes the room's selected model. Independent of message flow.
func (r *Room) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
}

// Hydrate replaces the UI list with turns rebuilt from storage. Loaded turns
// carry their database ids, so later regenerations address rows directly.
func (r *Room) Hydrate(msgs []types.Message) {
	turns := make([]types.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = types.TurnFromMessage(m)
	}
	r.State.ReplaceAll(turns)
}

// Registry hands out Rooms, one per conversation, creating them on demand.
type Registry struct {
	interval time.Duration
	chunk    int
	logger   *logrus.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewRegistry creates a Registry whose rooms animate at the given cadence.
func NewRegistry(interval time.Duration, chunk int, logger *logrus.Logger) *Registry {
	return &Registry{
		interval: interval,
		chunk:    chunk,
		logger:   logger,
		rooms:    make(map[uuid.UUID]*Room),
	}
}

func (g *Registry) newRoom() *Room {
	state := ui.NewChatState()
	return &Room{
		State:    state,
		Animator: ui.NewAnimator(state, g.interval, g.chunk, g.logger),
	}
}

// NewRoom creates an unprovisioned room. Call Adopt once an id exists.
func (g *Registry) NewRoom() *Room {
	return g.newRoom()
}

// Room returns the room for id, creating it when first addressed.
func (g *Registry) Room(id uuid.UUID) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[id]; ok {
		return room
	}
	room := g.newRoom()
	room.id = &id
	g.rooms[id] = room
	return room
}

// Adopt registers a freshly provisioned room under its new id.
func (g *Registry) Adopt(room *Room, id uuid.UUID) {
	room.SetID(id)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.rooms[id]; !exists {
		g.rooms[id] = room
	}
}
