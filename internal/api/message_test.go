package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitchat/chat-core/internal/chat"
	"github.com/orbitchat/chat-core/internal/completion"
	"github.com/orbitchat/chat-core/internal/kvstore"
	"github.com/orbitchat/chat-core/internal/modelpref"
	"github.com/orbitchat/chat-core/internal/retry"
	"github.com/orbitchat/chat-core/internal/service"
	"github.com/orbitchat/chat-core/internal/storage/postgres"
	"github.com/orbitchat/chat-core/internal/types"
)

// fakeConvRepo keeps conversations in memory. It serves both the handler
// surface and the model store's repository side.
type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*types.Conversation
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{convs: make(map[uuid.UUID]*types.Conversation)}
}

func (f *fakeConvRepo) add(publicKey, model string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.convs[id] = &types.Conversation{ID: &id, PublicKey: publicKey, Model: model}
	return id
}

func (f *fakeConvRepo) Create(_ context.Context, publicKey, model string) (*types.Conversation, error) {
	id := f.add(publicKey, model)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs[id], nil
}

func (f *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID, publicKey string) (*types.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok || conv.PublicKey != publicKey {
		return nil, postgres.ErrNotFound
	}
	return conv, nil
}

func (f *fakeConvRepo) List(_ context.Context, publicKey string, skip, take int) ([]types.Conversation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Conversation
	for _, conv := range f.convs {
		if conv.PublicKey == publicKey {
			out = append(out, *conv)
		}
	}
	return out, len(out), nil
}

func (f *fakeConvRepo) Archive(_ context.Context, id uuid.UUID, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.convs[id]; ok && conv.PublicKey == publicKey {
		delete(f.convs, id)
		return nil
	}
	return postgres.ErrNotFound
}

func (f *fakeConvRepo) Touch(context.Context, uuid.UUID) error { return nil }

func (f *fakeConvRepo) UpdateModel(_ context.Context, id uuid.UUID, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return postgres.ErrNotFound
	}
	conv.Model = model
	return nil
}

func (f *fakeConvRepo) GetModel(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return "", postgres.ErrNotFound
	}
	return conv.Model, nil
}

// fakeMsgRepo keeps messages in memory per conversation.
type fakeMsgRepo struct {
	mu     sync.Mutex
	byConv map[uuid.UUID][]types.Message
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{byConv: make(map[uuid.UUID][]types.Message)}
}

func (f *fakeMsgRepo) seed(convID uuid.UUID, role types.Role, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byConv[convID] = append(f.byConv[convID], types.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           role,
		ClientID:       uuid.New(),
		Content:        content,
	})
}

func (f *fakeMsgRepo) Upsert(_ context.Context, msg *types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.New()
	f.byConv[msg.ConversationID] = append(f.byConv[msg.ConversationID], *msg)
	return nil
}

func (f *fakeMsgRepo) UpdateContentByClientID(context.Context, uuid.UUID, types.Role, uuid.UUID, string) error {
	return nil
}

func (f *fakeMsgRepo) UpdateContentByID(context.Context, uuid.UUID, string) error {
	return nil
}

func (f *fakeMsgRepo) GetByConversationID(_ context.Context, id uuid.UUID) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Message(nil), f.byConv[id]...), nil
}

// fakeCompleter answers every call with a fixed body and records requests.
type fakeCompleter struct {
	mu       sync.Mutex
	requests []completion.Request
	content  string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, req *completion.Request) (*types.NormalizedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, *req)
	return &types.NormalizedResponse{Content: f.content}, nil
}

func (f *fakeCompleter) request(i int) completion.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type staticSession struct{}

func (staticSession) Token(context.Context) (string, error) { return "token", nil }
func (staticSession) Authenticated() bool                   { return true }

// fakeModelCache implements modelpref.Cache in memory.
type fakeModelCache struct {
	mu     sync.Mutex
	values map[string]string
}

var errCacheMiss = errors.New("cache miss")

func (f *fakeModelCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", errCacheMiss
}

func (f *fakeModelCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeModelCache) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

type serverFixture struct {
	server    *Server
	orch      *chat.Orchestrator
	rooms     *chat.Registry
	completer *fakeCompleter
	convRepo  *fakeConvRepo
	msgRepo   *fakeMsgRepo
	cache     *fakeModelCache
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	convRepo := newFakeConvRepo()
	msgRepo := newFakeMsgRepo()
	completer := &fakeCompleter{content: "assistant reply"}

	gateway := chat.NewGateway(convRepo, msgRepo, logger)
	policy := retry.NewPolicy(3, time.Millisecond, true, logger)
	orch := chat.NewOrchestrator(completer, gateway, policy, staticSession{}, logger)
	rooms := chat.NewRegistry(time.Millisecond, 64, logger)

	cache := &fakeModelCache{values: make(map[string]string)}
	models := modelpref.NewStore(convRepo, cache, kvstore.New(), logger)

	server := NewServer(service.NewAuthService("test-secret"), convRepo, msgRepo, orch, rooms, models, "default-model", logger)
	return &serverFixture{
		server:    server,
		orch:      orch,
		rooms:     rooms,
		completer: completer,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		cache:     cache,
	}
}

func (f *serverFixture) jsonRequest(t *testing.T, method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(buf))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("public_key", "pk")
	return c, rec
}

func TestSendMessageHydratesColdRoom(t *testing.T) {
	f := newServerFixture(t)
	roomID := f.convRepo.add("pk", "gpt-4o")
	f.msgRepo.seed(roomID, types.RoleUser, "earlier question")
	f.msgRepo.seed(roomID, types.RoleAssistant, "earlier answer")

	// Fresh process: the registry has never seen this room.
	c, rec := f.jsonRequest(t, http.MethodPost, "/chat/messages", SendMessageRequest{
		RoomID:  &roomID,
		Content: "follow-up",
	})
	require.NoError(t, f.server.SendMessage(c))
	f.orch.Drain()
	require.Equal(t, http.StatusOK, rec.Code)

	// The stored history went on the wire ahead of the new turn.
	msgs := f.completer.request(0).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "earlier question", msgs[0].Content)
	assert.Equal(t, "earlier answer", msgs[1].Content)
	assert.Equal(t, "follow-up", msgs[2].Content)

	// Hydrated turns carry database ids for later regenerations.
	turns := f.rooms.Room(roomID).State.Snapshot()
	require.Len(t, turns, 4)
	assert.NotNil(t, turns[0].DatabaseID)
}

func TestSendMessageWarmRoomIsNotRehydrated(t *testing.T) {
	f := newServerFixture(t)
	roomID := f.convRepo.add("pk", "gpt-4o")
	f.msgRepo.seed(roomID, types.RoleUser, "stored question")
	f.msgRepo.seed(roomID, types.RoleAssistant, "stored answer")

	send := func(content string) {
		c, rec := f.jsonRequest(t, http.MethodPost, "/chat/messages", SendMessageRequest{
			RoomID:  &roomID,
			Content: content,
		})
		require.NoError(t, f.server.SendMessage(c))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	send("first follow-up")
	f.orch.Drain()
	send("second follow-up")
	f.orch.Drain()

	// The warm room's in-memory list is the history source; the stored rows
	// are not read back in and nothing is duplicated.
	msgs := f.completer.request(1).Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "stored question", msgs[0].Content)
	assert.Equal(t, "first follow-up", msgs[2].Content)
	assert.Equal(t, "second follow-up", msgs[4].Content)
}

func TestSendMessageResolvesModelThroughStore(t *testing.T) {
	f := newServerFixture(t)
	roomID := f.convRepo.add("pk", "row-model")
	f.cache.set("chat:model:"+roomID.String(), "cached-model")

	c, rec := f.jsonRequest(t, http.MethodPost, "/chat/messages", SendMessageRequest{
		RoomID:  &roomID,
		Content: "hello",
	})
	require.NoError(t, f.server.SendMessage(c))
	f.orch.Drain()
	require.Equal(t, http.StatusOK, rec.Code)

	// The cached selection wins over the conversation row.
	assert.Equal(t, "cached-model", f.completer.request(0).Model)
}

func TestSelectModelPropagatesToRoom(t *testing.T) {
	f := newServerFixture(t)
	roomID := f.convRepo.add("pk", "old-model")

	c, rec := f.jsonRequest(t, http.MethodPut, "/chat/conversations/"+roomID.String()+"/model", SelectModelRequest{
		Model: "new-model",
	})
	c.SetParamNames("id")
	c.SetParamValues(roomID.String())
	require.NoError(t, f.server.SelectModel(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Durable row, cache, and the in-memory room all carry the selection.
	model, err := f.convRepo.GetModel(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "new-model", model)
	assert.Equal(t, "new-model", f.rooms.Room(roomID).Model())
}
