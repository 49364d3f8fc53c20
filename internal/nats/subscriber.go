package nats

import (
	"encoding/json"
	"fmt"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/nats-io/nats.go"
)

// Subscribe listens on subject for room payloads on behalf of subscriberID and
// skips payloads that subscriber sent itself. Repeated calls are no-ops.
func (c *NATSClient) Subscribe(subject, subscriberID string, handleFunc func(domain.Payload)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	subKey := fmt.Sprintf("%s:%s", subject, subscriberID)
	if _, exists := c.SubMapping[subKey]; exists {
		return nil
	}

	sub, err := c.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var p domain.Payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if subscriberID != "" && p.SenderID == subscriberID {
			return
		}
		handleFunc(p)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.SubMapping[subKey] = sub
	return nil
}

func (c *NATSClient) SubscribeRoom(key domain.RoomKey, subscriberID string, handleFunc func(domain.Payload)) error {
	return c.Subscribe(RoomSubject(key), subscriberID, handleFunc)
}

// Tail delivers the events of the given rooms to handleFunc, or of every room
// when rooms is empty. Payloads sent by excludeSender are skipped.
func (c *NATSClient) Tail(rooms []domain.RoomKey, excludeSender string, handleFunc func(domain.Payload)) error {
	if len(rooms) == 0 {
		return c.Subscribe(AllRoomsSubject, excludeSender, handleFunc)
	}
	for _, key := range rooms {
		if err := c.SubscribeRoom(key, excludeSender, handleFunc); err != nil {
			c.CleanupSubscriptions()
			return err
		}
	}
	return c.Flush()
}

// CleanupSubscriptions drops every subscription, ignoring unsubscribe errors.
func (c *NATSClient) CleanupSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.SubMapping {
		_ = sub.Unsubscribe()
		delete(c.SubMapping, key)
	}
}
