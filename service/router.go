package service

import (
	"context"
	"fmt"

	"github.com/SphrGhfri/roomchat/internal/direct"
	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/internal/room"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

// MessageSink accepts messages for durable storage.
type MessageSink interface {
	Enqueue(msg domain.Message) error
}

// MessageRouter moves chat messages from a sender to the other members of a
// room or direct channel, and owns the cleanup of participants that can no
// longer be reached.
type MessageRouter struct {
	conns    port.ConnectionRegistry
	rooms    *room.Registry
	directs  *direct.Registry
	sink     MessageSink
	events   port.EventPublisher
	presence port.Presence
	names    *NameDirectory
	log      logger.Logger
}

type RouterDeps struct {
	Connections port.ConnectionRegistry
	Rooms       *room.Registry
	Directs     *direct.Registry
	Sink        MessageSink
	Events      port.EventPublisher
	Presence    port.Presence
	Names       *NameDirectory
	Logger      logger.Logger
}

func NewMessageRouter(d RouterDeps) *MessageRouter {
	return &MessageRouter{
		conns:    d.Connections,
		rooms:    d.Rooms,
		directs:  d.Directs,
		sink:     d.Sink,
		events:   d.Events,
		presence: d.Presence,
		names:    d.Names,
		log:      d.Logger.WithModule("router"),
	}
}

// RouteRoomMessage posts content from senderID into the room and fans it out
// to every other member. Persistence is queued and its failure does not stop delivery.
func (r *MessageRouter) RouteRoomMessage(ctx context.Context, senderID string, key domain.RoomKey, content string) error {
	if err := domain.ValidateContent(content); err != nil {
		return err
	}
	msg, recipients, err := r.rooms.Post(key, senderID, content)
	if err != nil {
		return err
	}
	r.persist(msg)

	payload := domain.NewMessagePayload(domain.PayloadMessage, msg, r.names.Resolve(ctx, senderID))
	r.publish(key, payload)
	r.deliver(ctx, recipients, payload)
	return nil
}

// RouteDirectMessage posts content on the sender's direct channel and delivers it to the peer.
// An unreachable peer is cleaned up; the message stays persisted for its next open.
func (r *MessageRouter) RouteDirectMessage(ctx context.Context, senderID, recipientID string, content string) error {
	if err := domain.ValidateContent(content); err != nil {
		return err
	}
	msg, peer, err := r.directs.Post(senderID, recipientID, content)
	if err != nil {
		return err
	}
	r.persist(msg)

	payload := domain.NewMessagePayload(domain.PayloadDirect, msg, r.names.Resolve(ctx, senderID))
	r.publish(msg.Key(), payload)
	r.deliver(ctx, []string{peer}, payload)
	return nil
}

// Broadcast sends payload to every member of the room except exclude and evicts members that cannot be reached.
func (r *MessageRouter) Broadcast(ctx context.Context, key domain.RoomKey, payload domain.Payload, exclude string) {
	r.publish(key, payload)
	if failed := r.notify(key, payload, exclude); len(failed) > 0 {
		r.dropFailed(ctx, failed...)
	}
}

// SendTo delivers payload to a single participant, evicting it on failure.
func (r *MessageRouter) SendTo(ctx context.Context, participantID string, payload domain.Payload) error {
	data, err := payload.Encode()
	if err != nil {
		return err
	}
	if err := r.conns.Send(participantID, data); err != nil {
		r.dropFailed(ctx, participantID)
		return err
	}
	return nil
}

// Evict disconnects the participants and removes them from every room and
// direct channel. Members that fail to receive the resulting leave notices
// are dropped in turn.
func (r *MessageRouter) Evict(ctx context.Context, participantIDs ...string) {
	for _, pid := range participantIDs {
		r.conns.Disconnect(pid)
	}
	r.evict(ctx, participantIDs)
}

// Forget is Evict for a participant whose connection is already gone from the registry.
func (r *MessageRouter) Forget(ctx context.Context, participantID string) {
	r.evict(ctx, []string{participantID})
}

// dropFailed cleans up participants whose send failed. The registry has
// already released the failed handle, so nothing is disconnected here.
func (r *MessageRouter) dropFailed(ctx context.Context, participantIDs ...string) {
	r.evict(ctx, participantIDs)
}

func (r *MessageRouter) evict(ctx context.Context, queue []string) {
	seen := make(map[string]struct{})
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		queue = append(queue, r.cleanup(ctx, pid)...)
	}
}

func (r *MessageRouter) cleanup(ctx context.Context, pid string) []string {
	// reconnected since the failure: the new connection keeps the memberships
	if r.conns.IsConnected(pid) {
		r.log.Debugf("Skipping cleanup of %s, a newer connection is registered", pid)
		return nil
	}
	left := r.rooms.LeaveAll(pid)
	peers := r.directs.CloseAll(pid)
	if r.presence != nil {
		if err := r.presence.RemoveActiveUser(ctx, pid); err != nil {
			r.log.Warnf("Failed to remove %s from presence: %v", pid, err)
		}
	}
	r.log.WithFields(map[string]interface{}{
		"participant_id": pid,
		"rooms":          len(left),
		"direct_peers":   len(peers),
	}).Infof("Participant cleaned up")

	name := r.names.Resolve(ctx, pid)
	var failed []string
	for _, key := range left {
		notice := domain.NewSystemPayload(key, domain.LeftNotice(name))
		r.publish(key, notice)
		failed = append(failed, r.notify(key, notice, "")...)
	}
	return failed
}

// notify sends payload to the room members except exclude and returns the ones that failed.
func (r *MessageRouter) notify(key domain.RoomKey, payload domain.Payload, exclude string) []string {
	var recipients []string
	for _, id := range r.rooms.Members(key) {
		if id != exclude {
			recipients = append(recipients, id)
		}
	}
	return r.send(recipients, payload)
}

func (r *MessageRouter) deliver(ctx context.Context, recipients []string, payload domain.Payload) {
	if failed := r.send(recipients, payload); len(failed) > 0 {
		r.dropFailed(ctx, failed...)
	}
}

func (r *MessageRouter) send(recipients []string, payload domain.Payload) []string {
	if len(recipients) == 0 {
		return nil
	}
	data, err := payload.Encode()
	if err != nil {
		r.log.Errorf("Failed to encode payload %s: %v", payload.ID, err)
		return nil
	}
	var failed []string
	for _, id := range recipients {
		if err := r.conns.Send(id, data); err != nil {
			r.log.Debugf("Delivery to %s failed: %v", id, err)
			failed = append(failed, id)
		}
	}
	return failed
}

func (r *MessageRouter) persist(msg domain.Message) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Enqueue(msg); err != nil {
		r.log.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"room":       msg.Key().String(),
		}).Errorf("%v", fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err))
	}
}

func (r *MessageRouter) publish(key domain.RoomKey, payload domain.Payload) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishRoomEvent(key, payload); err != nil {
		r.log.Warnf("Failed to publish event for %s: %v", key, err)
	}
}
