package domain

import (
	"sort"
	"time"
)

// MaxBufferedMessages bounds every in-memory room and direct channel buffer.
const MaxBufferedMessages = 50

type Message struct {
	ID        string
	RoomType  RoomType
	RoomID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

func (m Message) Key() RoomKey {
	return RoomKey{Type: m.RoomType, ID: m.RoomID}
}

// MessageBuffer keeps the most recent messages in insertion order.
// It is not safe for concurrent use; registries guard it with their own lock.
type MessageBuffer struct {
	limit    int
	messages []Message
}

func NewMessageBuffer(limit int) *MessageBuffer {
	if limit <= 0 {
		limit = MaxBufferedMessages
	}
	return &MessageBuffer{limit: limit}
}

func (b *MessageBuffer) Append(msg Message) {
	b.messages = append(b.messages, msg)
	if len(b.messages) > b.limit {
		b.messages = append([]Message(nil), b.messages[len(b.messages)-b.limit:]...)
	}
}

func (b *MessageBuffer) Len() int {
	return len(b.messages)
}

func (b *MessageBuffer) Snapshot() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Merge folds msgs into the buffer, dropping duplicate ids and keeping id order.
func (b *MessageBuffer) Merge(msgs []Message) {
	b.messages = MergeMessages(b.limit, b.messages, msgs)
}

// MergeMessages returns the newest limit messages of all inputs, deduplicated by id
// and sorted oldest first.
func MergeMessages(limit int, sets ...[]Message) []Message {
	seen := make(map[string]struct{})
	var out []Message
	for _, set := range sets {
		for _, m := range set {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
