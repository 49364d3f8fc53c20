package port

import (
	"context"
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
)

// Handle is a live transport to one participant.
type Handle interface {
	Send(payload []byte) error
	Close() error
}

// Identity is the authenticated participant behind a connection.
type Identity struct {
	ID   string
	Name string
}

type ChatService interface {
	OnConnect(ctx context.Context, who Identity, h Handle)
	OnMessage(ctx context.Context, participantID string, raw []byte)
	OnDisconnect(ctx context.Context, participantID string, h Handle)

	CreateRoom(ctx context.Context, key domain.RoomKey, name, password string) (domain.RoomInfo, bool, error)
	DeleteRoom(ctx context.Context, key domain.RoomKey) error
	ListRooms() map[domain.RoomType][]domain.RoomInfo
	Kick(ctx context.Context, participantID string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg domain.Message) error
	// FetchRecent returns up to limit of the newest messages for key, oldest first.
	FetchRecent(ctx context.Context, key domain.RoomKey, limit int) ([]domain.Message, error)
}

// PayloadCache holds rendered outbound payloads by message id.
type PayloadCache interface {
	Get(ctx context.Context, messageID string) ([]byte, bool, error)
	Set(ctx context.Context, messageID string, payload []byte, ttl time.Duration) error
}

type Presence interface {
	AddActiveUser(ctx context.Context, participantID string) error
	RemoveActiveUser(ctx context.Context, participantID string) error
	GetActiveUsers(ctx context.Context) ([]string, error)
}

type NameStore interface {
	SetDisplayName(ctx context.Context, participantID, name string) error
	GetDisplayName(ctx context.Context, participantID string) (string, bool, error)
}

// EventPublisher mirrors room traffic to external observers.
type EventPublisher interface {
	PublishRoomEvent(key domain.RoomKey, payload domain.Payload) error
}

// ConnectionRegistry resolves participant ids to live handles.
type ConnectionRegistry interface {
	Connect(participantID string, h Handle)
	Disconnect(participantID string)
	Release(participantID string, h Handle) bool
	Send(participantID string, payload []byte) error
	IsConnected(participantID string) bool
	Connected() []string
}
