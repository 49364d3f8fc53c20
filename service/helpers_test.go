package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SphrGhfri/roomchat/internal/direct"
	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/internal/room"
	"github.com/SphrGhfri/roomchat/internal/websocket"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeHandle records every payload it is asked to send.
type fakeHandle struct {
	mu       sync.Mutex
	fail     bool
	closed   bool
	payloads []domain.Payload
}

func (f *fakeHandle) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("connection reset")
	}
	var p domain.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) setFail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

func (f *fakeHandle) all() []domain.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Payload(nil), f.payloads...)
}

func (f *fakeHandle) ofType(t domain.PayloadType) []domain.Payload {
	var out []domain.Payload
	for _, p := range f.all() {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeHandle) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = nil
}

// MockMessageStore is a testify mock of port.MessageStore.
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) SaveMessage(ctx context.Context, msg domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageStore) FetchRecent(ctx context.Context, key domain.RoomKey, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, key, limit)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

// memoryStore is a minimal in-process message store.
type memoryStore struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (s *memoryStore) SaveMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *memoryStore) FetchRecent(_ context.Context, key domain.RoomKey, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.msgs {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	return domain.MergeMessages(limit, out), nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// syncSink saves straight into a store, standing in for the async persister.
type syncSink struct {
	store port.MessageStore
	err   error
}

func (s *syncSink) Enqueue(msg domain.Message) error {
	if s.err != nil {
		return s.err
	}
	return s.store.SaveMessage(context.Background(), msg)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, id string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[id]
	return d, ok, nil
}

func (c *memoryCache) Set(_ context.Context, id string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = payload
	c.sets++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Payload
}

func (p *recordingPublisher) PublishRoomEvent(_ domain.RoomKey, payload domain.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

type fixture struct {
	hub     *websocket.Hub
	rooms   *room.Registry
	directs *direct.Registry
	store   *memoryStore
	sink    *syncSink
	events  *recordingPublisher
	chat    *ChatService
	handles map[string]*fakeHandle
}

type fixtureOption func(*Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	log := logger.Nop()
	f := &fixture{
		hub:     websocket.NewHub(log),
		rooms:   room.NewRegistry(log, room.WithDefaultRooms("general")),
		directs: direct.NewRegistry(log),
		store:   &memoryStore{},
		events:  &recordingPublisher{},
		handles: make(map[string]*fakeHandle),
	}
	f.sink = &syncSink{store: f.store}
	deps := Deps{
		Connections: f.hub,
		Rooms:       f.rooms,
		Directs:     f.directs,
		Store:       f.store,
		Sink:        f.sink,
		Events:      f.events,
		History:     HistoryConfig{Limit: domain.MaxBufferedMessages, CacheTTL: time.Hour},
		Logger:      log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.chat = NewChatService(deps)
	return f
}

func (f *fixture) connect(t *testing.T, id string) *fakeHandle {
	t.Helper()
	h := &fakeHandle{}
	f.handles[id] = h
	f.chat.OnConnect(context.Background(), port.Identity{ID: id, Name: "name-" + id}, h)
	return h
}

func (f *fixture) send(t *testing.T, from string, frame domain.Frame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	f.chat.OnMessage(context.Background(), from, raw)
}

func joinFrame(key domain.RoomKey, password string) domain.Frame {
	return domain.Frame{Type: domain.FrameJoinRoom, RoomType: string(key.Type), RoomID: key.ID, Password: password}
}

func chatFrame(key domain.RoomKey, content string) domain.Frame {
	return domain.Frame{Type: domain.FrameChatMessage, RoomType: string(key.Type), RoomID: key.ID, Content: content}
}
