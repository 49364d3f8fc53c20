package store

import (
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
)

// MessageRecord is the persisted form of a room or direct message.
type MessageRecord struct {
	ID        string    `gorm:"primaryKey;size:26"`
	RoomType  string    `gorm:"size:16;not null;index:idx_messages_room,priority:1"`
	RoomID    string    `gorm:"size:160;not null;index:idx_messages_room,priority:2"`
	SenderID  string    `gorm:"size:128;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (MessageRecord) TableName() string {
	return "messages"
}

func fromDomain(m domain.Message) MessageRecord {
	return MessageRecord{
		ID:        m.ID,
		RoomType:  string(m.RoomType),
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func (r MessageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		RoomType:  domain.RoomType(r.RoomType),
		RoomID:    r.RoomID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
