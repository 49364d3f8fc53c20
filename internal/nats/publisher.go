package nats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SphrGhfri/roomchat/internal/domain"
)

const subjectPrefix = "chat.room"

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// RoomSubject maps a room to its NATS subject, e.g. "chat.room.public.general".
func RoomSubject(key domain.RoomKey) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, key.Type, tokenReplacer.Replace(key.ID))
}

// AllRoomsSubject matches every room subject.
const AllRoomsSubject = subjectPrefix + ".>"

func (c *NATSClient) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	if err := c.Conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishRoomEvent mirrors a payload delivered in a room to its subject.
func (c *NATSClient) PublishRoomEvent(key domain.RoomKey, payload domain.Payload) error {
	return c.Publish(RoomSubject(key), payload)
}
