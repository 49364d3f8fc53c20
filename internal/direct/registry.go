package direct

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

// pair is an ordered participant pair, so (a, b) and (b, a) compare equal.
type pair [2]string

func newPair(a, b string) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// PairKey returns the canonical key shared by both participants of a direct channel.
// The first id is length-prefixed so ids containing ':' cannot make two pairs collide.
func PairKey(a, b string) string {
	p := newPair(a, b)
	return fmt.Sprintf("dm:%d:%s:%s", len(p[0]), p[0], p[1])
}

// RoomKey returns the room key under which the pair's messages are stored.
func RoomKey(a, b string) domain.RoomKey {
	return domain.NewRoomKey(domain.RoomTypeDirect, PairKey(a, b))
}

type channel struct {
	key      domain.RoomKey
	peers    pair
	opened   map[string]struct{}
	hydrated bool
	buffer   *domain.MessageBuffer
}

func (c *channel) peerOf(id string) string {
	if c.peers[0] == id {
		return c.peers[1]
	}
	return c.peers[0]
}

// Registry tracks 1:1 channels. (a, b) and (b, a) address the same channel.
type Registry struct {
	mu         sync.RWMutex
	channels   map[pair]*channel
	byRoom     map[string]pair
	recipients map[string]map[string]struct{}
	bufferSize int
	now        func() time.Time
	log        logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		channels:   make(map[pair]*channel),
		byRoom:     make(map[string]pair),
		recipients: make(map[string]map[string]struct{}),
		bufferSize: domain.MaxBufferedMessages,
		now:        time.Now,
		log:        log.WithModule("direct"),
	}
}

func validatePair(actorID, recipientID string) error {
	if strings.TrimSpace(actorID) == "" || strings.TrimSpace(recipientID) == "" {
		return fmt.Errorf("%w: empty participant", domain.ErrInvalidRoomID)
	}
	if actorID == recipientID {
		return domain.ErrSelfDirect
	}
	return nil
}

// Open marks the channel between actorID and recipientID as open for actorID.
func (r *Registry) Open(actorID, recipientID string) (domain.Backlog, error) {
	if err := validatePair(actorID, recipientID); err != nil {
		return domain.Backlog{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pk := newPair(actorID, recipientID)
	ch, ok := r.channels[pk]
	if !ok {
		ch = &channel{
			key:    RoomKey(actorID, recipientID),
			peers:  pk,
			opened: make(map[string]struct{}),
			buffer: domain.NewMessageBuffer(r.bufferSize),
		}
		r.channels[pk] = ch
		r.byRoom[ch.key.ID] = pk
	}
	ch.opened[actorID] = struct{}{}

	set, ok := r.recipients[actorID]
	if !ok {
		set = make(map[string]struct{})
		r.recipients[actorID] = set
	}
	set[recipientID] = struct{}{}

	return domain.Backlog{
		Messages: ch.buffer.Snapshot(),
		Hydrated: ch.hydrated,
		Boundary: domain.NewID(),
	}, nil
}

// Close drops actorID's side of the channel. The channel goes away once neither side has it open.
func (r *Registry) Close(actorID, recipientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked(actorID, recipientID)
}

func (r *Registry) closeLocked(actorID, recipientID string) bool {
	pk := newPair(actorID, recipientID)
	ch, ok := r.channels[pk]
	if !ok {
		return false
	}
	if _, open := ch.opened[actorID]; !open {
		return false
	}
	delete(ch.opened, actorID)
	if set, ok := r.recipients[actorID]; ok {
		delete(set, recipientID)
		if len(set) == 0 {
			delete(r.recipients, actorID)
		}
	}
	if len(ch.opened) == 0 {
		delete(r.channels, pk)
		delete(r.byRoom, ch.key.ID)
	}
	return true
}

// CloseAll closes every channel actorID has open and returns the peers.
func (r *Registry) CloseAll(actorID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var peers []string
	for id := range r.recipients[actorID] {
		peers = append(peers, id)
	}
	for _, id := range peers {
		r.closeLocked(actorID, id)
	}
	sort.Strings(peers)
	return peers
}

// Recipients lists the participants actorID currently has channels open with.
func (r *Registry) Recipients(actorID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.recipients[actorID]))
	for id := range r.recipients[actorID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) IsOpen(actorID, recipientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[newPair(actorID, recipientID)]
	if !ok {
		return false
	}
	_, open := ch.opened[actorID]
	return open
}

// Post records a message from actorID on its open channel and returns the peer to deliver to.
func (r *Registry) Post(actorID, recipientID, content string) (domain.Message, string, error) {
	if err := validatePair(actorID, recipientID); err != nil {
		return domain.Message{}, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[newPair(actorID, recipientID)]
	if !ok {
		return domain.Message{}, "", domain.ErrNotMember
	}
	if _, open := ch.opened[actorID]; !open {
		return domain.Message{}, "", domain.ErrNotMember
	}

	msg := domain.Message{
		ID:        domain.NewID(),
		RoomType:  ch.key.Type,
		RoomID:    ch.key.ID,
		SenderID:  actorID,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}
	ch.buffer.Append(msg)
	return msg, ch.peerOf(actorID), nil
}

func (r *Registry) Hydrate(key domain.RoomKey, msgs []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pk, ok := r.byRoom[key.ID]
	if !ok {
		return
	}
	ch := r.channels[pk]
	ch.buffer.Merge(msgs)
	ch.hydrated = true
}

func (r *Registry) Messages(actorID, recipientID string) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[newPair(actorID, recipientID)]
	if !ok {
		return nil
	}
	return ch.buffer.Snapshot()
}
