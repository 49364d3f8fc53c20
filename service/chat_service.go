package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/SphrGhfri/roomchat/internal/direct"
	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/internal/room"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

// ChatService is the entry point the transport layer drives for every connection.
type ChatService struct {
	conns    port.ConnectionRegistry
	rooms    *room.Registry
	directs  *direct.Registry
	router   *MessageRouter
	history  *HistoryLoader
	names    *NameDirectory
	presence port.Presence
	log      logger.Logger
}

var _ port.ChatService = (*ChatService)(nil)

type Deps struct {
	Connections port.ConnectionRegistry
	Rooms       *room.Registry
	Directs     *direct.Registry
	Store       port.MessageStore
	Sink        MessageSink
	Cache       port.PayloadCache
	Presence    port.Presence
	NameStore   port.NameStore
	Events      port.EventPublisher
	History     HistoryConfig
	Logger      logger.Logger
}

func NewChatService(d Deps) *ChatService {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	names := NewNameDirectory(d.NameStore, log)
	router := NewMessageRouter(RouterDeps{
		Connections: d.Connections,
		Rooms:       d.Rooms,
		Directs:     d.Directs,
		Sink:        d.Sink,
		Events:      d.Events,
		Presence:    d.Presence,
		Names:       names,
		Logger:      log,
	})
	history := NewHistoryLoader(HistoryDeps{
		Connections: d.Connections,
		Store:       d.Store,
		Cache:       d.Cache,
		Names:       names,
		Rooms:       d.Rooms,
		Directs:     d.Directs,
		Config:      d.History,
		Logger:      log,
	})
	return &ChatService{
		conns:    d.Connections,
		rooms:    d.Rooms,
		directs:  d.Directs,
		router:   router,
		history:  history,
		names:    names,
		presence: d.Presence,
		log:      log.WithModule("chat"),
	}
}

func (s *ChatService) Router() *MessageRouter {
	return s.router
}

func (s *ChatService) OnConnect(ctx context.Context, who port.Identity, h port.Handle) {
	s.names.Remember(ctx, who.ID, who.Name)
	s.conns.Connect(who.ID, h)
	if s.presence != nil {
		if err := s.presence.AddActiveUser(ctx, who.ID); err != nil {
			s.log.Warnf("Failed to add %s to presence: %v", who.ID, err)
		}
	}
	s.log.WithFields(map[string]interface{}{
		"participant_id": who.ID,
		"name":           who.Name,
	}).Infof("Participant connected")
}

// OnDisconnect tears down participantID unless a newer connection has taken its place.
func (s *ChatService) OnDisconnect(ctx context.Context, participantID string, h port.Handle) {
	s.conns.Release(participantID, h)
	if s.conns.IsConnected(participantID) {
		s.log.Debugf("Stale connection of %s closed, newer connection kept", participantID)
		return
	}
	s.router.Forget(ctx, participantID)
	s.log.WithFields(map[string]interface{}{"participant_id": participantID}).Infof("Participant disconnected")
}

// OnMessage handles one raw client frame. Problems are reported to the sender only.
func (s *ChatService) OnMessage(ctx context.Context, participantID string, raw []byte) {
	frame, err := domain.ParseFrame(raw)
	if err == nil {
		err = s.dispatch(ctx, participantID, frame)
	}
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"participant_id": participantID,
			"frame":          string(frame.Type),
		}).Debugf("Rejected frame: %v", err)
		s.SendError(ctx, participantID, err)
	}
}

func (s *ChatService) dispatch(ctx context.Context, pid string, f domain.Frame) error {
	switch f.Type {
	case domain.FrameJoinRoom:
		key, err := f.Key()
		if err != nil {
			return err
		}
		return s.Join(ctx, pid, key, f.Password)
	case domain.FrameLeaveRoom:
		key, err := f.Key()
		if err != nil {
			return err
		}
		s.Leave(ctx, pid, key)
		return nil
	case domain.FrameChatMessage:
		if strings.TrimSpace(f.Content) == domain.UsersCommand {
			return s.listUsers(ctx, pid)
		}
		key, err := f.Key()
		if err != nil {
			return err
		}
		return s.router.RouteRoomMessage(ctx, pid, key, f.Content)
	case domain.FrameOpenDirect:
		return s.OpenDirect(ctx, pid, strings.TrimSpace(f.RecipientID))
	case domain.FrameCloseDirect:
		s.directs.Close(pid, strings.TrimSpace(f.RecipientID))
		return nil
	case domain.FrameDirectMessage:
		return s.router.RouteDirectMessage(ctx, pid, strings.TrimSpace(f.RecipientID), f.Content)
	case domain.FrameListRooms:
		return s.sendRooms(ctx, pid)
	case domain.FrameListUsers:
		return s.listUsers(ctx, pid)
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownType, f.Type)
}

// Join adds pid to the room, replays its history and announces the arrival.
func (s *ChatService) Join(ctx context.Context, pid string, key domain.RoomKey, password string) error {
	backlog, err := s.rooms.Join(pid, key, password)
	if err != nil {
		return err
	}
	if _, err := s.history.OnJoin(ctx, pid, key, backlog); err != nil {
		s.log.Warnf("History replay to %s aborted: %v", pid, err)
		s.router.dropFailed(ctx, pid)
		return nil
	}
	notice := domain.NewSystemPayload(key, domain.JoinedNotice(s.names.Resolve(ctx, pid)))
	s.router.Broadcast(ctx, key, notice, "")
	return nil
}

// Leave removes pid from the room. Leaving a room one is not in does nothing.
func (s *ChatService) Leave(ctx context.Context, pid string, key domain.RoomKey) {
	if !s.rooms.Leave(pid, key) {
		return
	}
	notice := domain.NewSystemPayload(key, domain.LeftNotice(s.names.Resolve(ctx, pid)))
	s.router.Broadcast(ctx, key, notice, "")
	_ = s.router.SendTo(ctx, pid, notice)
}

func (s *ChatService) OpenDirect(ctx context.Context, pid, recipientID string) error {
	backlog, err := s.directs.Open(pid, recipientID)
	if err != nil {
		return err
	}
	if _, err := s.history.OnJoin(ctx, pid, direct.RoomKey(pid, recipientID), backlog); err != nil {
		s.log.Warnf("Direct history replay to %s aborted: %v", pid, err)
		s.router.dropFailed(ctx, pid)
	}
	return nil
}

// SendError reports err to pid alone.
func (s *ChatService) SendError(ctx context.Context, pid string, err error) {
	_ = s.router.SendTo(ctx, pid, domain.NewErrorPayload(err))
}

func (s *ChatService) listUsers(ctx context.Context, pid string) error {
	users := s.conns.Connected()
	if s.presence != nil {
		active, err := s.presence.GetActiveUsers(ctx)
		if err != nil {
			s.log.Warnf("Failed to list active users, using local connections: %v", err)
		} else {
			users = active
		}
	}
	names := make([]string, 0, len(users))
	for _, id := range users {
		names = append(names, s.names.Resolve(ctx, id))
	}
	sort.Strings(names)

	p := domain.NewSystemPayload(domain.RoomKey{}, "Active users: "+strings.Join(names, ", "))
	p.Type = domain.PayloadUsers
	return s.router.SendTo(ctx, pid, p)
}

func (s *ChatService) sendRooms(ctx context.Context, pid string) error {
	data, err := json.Marshal(s.ListRooms())
	if err != nil {
		return fmt.Errorf("failed to encode rooms: %w", err)
	}
	p := domain.NewSystemPayload(domain.RoomKey{}, string(data))
	p.Type = domain.PayloadRooms
	return s.router.SendTo(ctx, pid, p)
}

func (s *ChatService) CreateRoom(_ context.Context, key domain.RoomKey, name, password string) (domain.RoomInfo, bool, error) {
	return s.rooms.CreateRoom(key, name, password)
}

// DeleteRoom removes the room and tells its former members.
func (s *ChatService) DeleteRoom(ctx context.Context, key domain.RoomKey) error {
	if key.Type == domain.RoomTypeDirect {
		return domain.ErrInvalidRoomType
	}
	name, members, err := s.rooms.DeleteRoom(key)
	if err != nil {
		return err
	}
	notice := domain.NewSystemPayload(key, domain.DeletedNotice(name))
	data, err := notice.Encode()
	if err != nil {
		return err
	}
	var failed []string
	for _, id := range members {
		if err := s.conns.Send(id, data); err != nil && !errors.Is(err, domain.ErrNotConnected) {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		s.router.dropFailed(ctx, failed...)
	}
	s.log.WithFields(map[string]interface{}{"room": key.String(), "members": len(members)}).Infof("Room deleted")
	return nil
}

// Kick closes the participant's connection and removes it from every room and direct channel.
func (s *ChatService) Kick(ctx context.Context, participantID string) error {
	if !s.conns.IsConnected(participantID) {
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, participantID)
	}
	s.router.Evict(ctx, participantID)
	s.log.WithFields(map[string]interface{}{"participant_id": participantID}).Infof("Participant kicked")
	return nil
}

func (s *ChatService) ListRooms() map[domain.RoomType][]domain.RoomInfo {
	return s.rooms.ListAvailableRooms()
}
