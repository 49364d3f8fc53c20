package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

type room struct {
	key        domain.RoomKey
	name       string
	password   string
	persistent bool
	hydrated   bool
	members    map[string]struct{}
	buffer     *domain.MessageBuffer
}

func (r *room) info() domain.RoomInfo {
	return domain.RoomInfo{
		ID:          r.key.ID,
		Name:        r.name,
		HasPassword: r.password != "",
		MemberCount: len(r.members),
	}
}

// prunable reports whether an empty room can be dropped. Private rooms hold
// an identity and a password, so they stay until deleted.
func (r *room) prunable() bool {
	return len(r.members) == 0 && !r.persistent && r.key.Type != domain.RoomTypePrivate
}

// Registry owns room metadata, membership and the recent message buffers.
// A single lock guards all rooms.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[domain.RoomKey]*room
	memberships map[string]map[domain.RoomKey]struct{}
	bufferSize  int
	now         func() time.Time
	log         logger.Logger
}

type Option func(*Registry)

func WithBufferSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithDefaultRooms creates public rooms that are never pruned.
func WithDefaultRooms(ids ...string) Option {
	return func(r *Registry) {
		for _, id := range ids {
			key := domain.NewRoomKey(domain.RoomTypePublic, id)
			rm := r.newRoom(key, id, "")
			rm.persistent = true
			r.rooms[key] = rm
		}
	}
}

func NewRegistry(log logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		rooms:       make(map[domain.RoomKey]*room),
		memberships: make(map[string]map[domain.RoomKey]struct{}),
		bufferSize:  domain.MaxBufferedMessages,
		now:         time.Now,
		log:         log.WithModule("room"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) newRoom(key domain.RoomKey, name, password string) *room {
	if name == "" {
		name = key.ID
	}
	return &room{
		key:      key,
		name:     name,
		password: password,
		members:  make(map[string]struct{}),
		buffer:   domain.NewMessageBuffer(r.bufferSize),
	}
}

func checkKey(key domain.RoomKey) error {
	switch key.Type {
	case domain.RoomTypePublic, domain.RoomTypePrivate:
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidRoomType, key.Type)
	}
	return domain.ValidateRoomID(key.ID)
}

// CreateRoom registers a room. An existing room is left untouched and returned
// with created set to false.
func (r *Registry) CreateRoom(key domain.RoomKey, name, password string) (domain.RoomInfo, bool, error) {
	if err := checkKey(key); err != nil {
		return domain.RoomInfo{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rooms[key]; ok {
		return existing.info(), false, nil
	}
	rm := r.newRoom(key, name, password)
	if key.Type != domain.RoomTypePrivate {
		rm.password = ""
	}
	r.rooms[key] = rm
	r.log.WithFields(map[string]interface{}{"room": key.String()}).Infof("Room created")
	return rm.info(), true, nil
}

// Join adds participantID to the room. Private rooms must exist and, when they
// carry a password, it must match exactly. Other rooms are created on demand.
// Joining a room twice is allowed and returns a fresh backlog.
func (r *Registry) Join(participantID string, key domain.RoomKey, password string) (domain.Backlog, error) {
	if err := checkKey(key); err != nil {
		return domain.Backlog{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		if key.Type == domain.RoomTypePrivate {
			return domain.Backlog{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, key)
		}
		rm = r.newRoom(key, key.ID, "")
		r.rooms[key] = rm
	}
	if key.Type == domain.RoomTypePrivate && rm.password != "" && rm.password != password {
		return domain.Backlog{}, domain.ErrBadPassword
	}

	rm.members[participantID] = struct{}{}
	joined, ok := r.memberships[participantID]
	if !ok {
		joined = make(map[domain.RoomKey]struct{})
		r.memberships[participantID] = joined
	}
	joined[key] = struct{}{}

	return domain.Backlog{
		Messages: rm.buffer.Snapshot(),
		Hydrated: rm.hydrated,
		Boundary: domain.NewID(),
	}, nil
}

// Leave removes participantID from the room and reports whether it was a member.
func (r *Registry) Leave(participantID string, key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(participantID, key)
}

func (r *Registry) leaveLocked(participantID string, key domain.RoomKey) bool {
	rm, ok := r.rooms[key]
	if !ok {
		return false
	}
	if _, member := rm.members[participantID]; !member {
		return false
	}
	delete(rm.members, participantID)
	if joined, ok := r.memberships[participantID]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.memberships, participantID)
		}
	}
	if rm.prunable() {
		delete(r.rooms, key)
		r.log.WithFields(map[string]interface{}{"room": key.String()}).Debugf("Pruned empty room")
	}
	return true
}

// LeaveAll removes participantID from every room it joined and returns those rooms.
func (r *Registry) LeaveAll(participantID string) []domain.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []domain.RoomKey
	for key := range r.memberships[participantID] {
		left = append(left, key)
	}
	for _, key := range left {
		r.leaveLocked(participantID, key)
	}
	sortKeys(left)
	return left
}

// DeleteRoom removes a room regardless of its type and returns its former members.
func (r *Registry) DeleteRoom(key domain.RoomKey) (string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, key)
	}
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
		if joined, ok := r.memberships[id]; ok {
			delete(joined, key)
			if len(joined) == 0 {
				delete(r.memberships, id)
			}
		}
	}
	delete(r.rooms, key)
	sort.Strings(members)
	return rm.name, members, nil
}

func (r *Registry) ListAvailableRooms() map[domain.RoomType][]domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[domain.RoomType][]domain.RoomInfo{
		domain.RoomTypePublic:  {},
		domain.RoomTypePrivate: {},
	}
	for key, rm := range r.rooms {
		out[key.Type] = append(out[key.Type], rm.info())
	}
	for _, infos := range out {
		sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	}
	return out
}

// AppendMessage pushes msg into the room buffer, evicting the oldest entries past the cap.
func (r *Registry) AppendMessage(key domain.RoomKey, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, key)
	}
	rm.buffer.Append(msg)
	return nil
}

// Post records a message from senderID and returns it with the members that
// should receive it. Id assignment, buffering and the membership check happen
// under one lock so ids follow buffer order.
func (r *Registry) Post(key domain.RoomKey, senderID, content string) (domain.Message, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return domain.Message{}, nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, key)
	}
	if _, member := rm.members[senderID]; !member {
		return domain.Message{}, nil, domain.ErrNotMember
	}

	msg := domain.Message{
		ID:        domain.NewID(),
		RoomType:  key.Type,
		RoomID:    key.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}
	rm.buffer.Append(msg)

	recipients := make([]string, 0, len(rm.members))
	for id := range rm.members {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	sort.Strings(recipients)
	return msg, recipients, nil
}

// Hydrate merges persisted history into the room buffer and marks it loaded.
func (r *Registry) Hydrate(key domain.RoomKey, msgs []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return
	}
	rm.buffer.Merge(msgs)
	rm.hydrated = true
}

func (r *Registry) Members(key domain.RoomKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) IsMember(participantID string, key domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[key]
	if !ok {
		return false
	}
	_, member := rm.members[participantID]
	return member
}

func (r *Registry) Messages(key domain.RoomKey) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[key]
	if !ok {
		return nil
	}
	return rm.buffer.Snapshot()
}

func (r *Registry) Exists(key domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[key]
	return ok
}

func sortKeys(keys []domain.RoomKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
