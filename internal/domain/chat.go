package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FrameType is the type of an inbound client frame.
type FrameType string

const (
	FrameJoinRoom      FrameType = "join_room"
	FrameLeaveRoom     FrameType = "leave_room"
	FrameChatMessage   FrameType = "chat_message"
	FrameOpenDirect    FrameType = "open_direct"
	FrameCloseDirect   FrameType = "close_direct"
	FrameDirectMessage FrameType = "direct_message"
	FrameListRooms     FrameType = "list_rooms"
	FrameListUsers     FrameType = "list_users"
)

// UsersCommand in chat content lists active users instead of posting.
const UsersCommand = "#users"

// PayloadType is the type of an outbound payload.
type PayloadType string

const (
	PayloadMessage    PayloadType = "message"
	PayloadSystem     PayloadType = "system"
	PayloadHistorical PayloadType = "historical"
	PayloadError      PayloadType = "error"
	PayloadDirect     PayloadType = "direct"
	PayloadRooms      PayloadType = "rooms"
	PayloadUsers      PayloadType = "users"
)

const (
	SystemSenderID = "system"
	SystemSender   = "System"
)

type Frame struct {
	Type        FrameType `json:"type"`
	RoomType    string    `json:"room_type,omitempty"`
	RoomID      string    `json:"room_id,omitempty"`
	Password    string    `json:"password,omitempty"`
	Content     string    `json:"content,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
}

// ParseFrame decodes a raw client frame. Any decoding problem is reported as ErrMalformedPayload.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	f.Type = FrameType(strings.TrimSpace(string(f.Type)))
	if f.Type == "" {
		return f, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return f, nil
}

// Key resolves the room addressed by the frame.
func (f Frame) Key() (RoomKey, error) {
	rt, err := ParseRoomType(f.RoomType)
	if err != nil {
		return RoomKey{}, err
	}
	id := strings.TrimSpace(f.RoomID)
	if err := ValidateRoomID(id); err != nil {
		return RoomKey{}, err
	}
	return RoomKey{Type: rt, ID: id}, nil
}

type Payload struct {
	ID        string      `json:"id"`
	Type      PayloadType `json:"type"`
	SenderID  string      `json:"sender_id"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
	RoomID    string      `json:"room_id,omitempty"`
	RoomType  RoomType    `json:"room_type,omitempty"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewMessagePayload renders a stored message for delivery.
func NewMessagePayload(typ PayloadType, msg Message, senderName string) Payload {
	return Payload{
		ID:        msg.ID,
		Type:      typ,
		SenderID:  msg.SenderID,
		Sender:    senderName,
		Content:   msg.Content,
		Timestamp: FormatTimestamp(msg.CreatedAt),
		RoomID:    msg.RoomID,
		RoomType:  msg.RoomType,
	}
}

func NewSystemPayload(key RoomKey, content string) Payload {
	return Payload{
		ID:        NewID(),
		Type:      PayloadSystem,
		SenderID:  SystemSenderID,
		Sender:    SystemSender,
		Content:   content,
		Timestamp: FormatTimestamp(time.Now()),
		RoomID:    key.ID,
		RoomType:  key.Type,
	}
}

func NewErrorPayload(err error) Payload {
	return Payload{
		ID:        NewID(),
		Type:      PayloadError,
		SenderID:  SystemSenderID,
		Sender:    SystemSender,
		Content:   err.Error(),
		Timestamp: FormatTimestamp(time.Now()),
	}
}

func (p Payload) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return b, nil
}

func JoinedNotice(name string) string {
	return fmt.Sprintf("User %s joined the room", name)
}

func LeftNotice(name string) string {
	return fmt.Sprintf("User %s left the room", name)
}

func DeletedNotice(roomName string) string {
	return fmt.Sprintf("Room %s was deleted", roomName)
}
