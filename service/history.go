package service

import (
	"context"
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Hydrator accepts history loaded from the store into an in-memory buffer.
type Hydrator interface {
	Hydrate(key domain.RoomKey, msgs []domain.Message)
}

type HistoryConfig struct {
	Limit    int
	CacheTTL time.Duration
}

// HistoryLoader replays recent messages to a participant that just joined a
// room or opened a direct channel. Replay order is oldest first; ordering
// against live traffic is best effort.
type HistoryLoader struct {
	conns   port.ConnectionRegistry
	store   port.MessageStore
	cache   port.PayloadCache
	names   *NameDirectory
	rooms   Hydrator
	directs Hydrator
	cfg     HistoryConfig
	sf      singleflight.Group
	log     logger.Logger
}

type HistoryDeps struct {
	Connections port.ConnectionRegistry
	Store       port.MessageStore
	Cache       port.PayloadCache
	Names       *NameDirectory
	Rooms       Hydrator
	Directs     Hydrator
	Config      HistoryConfig
	Logger      logger.Logger
}

func NewHistoryLoader(d HistoryDeps) *HistoryLoader {
	cfg := d.Config
	if cfg.Limit <= 0 {
		cfg.Limit = domain.MaxBufferedMessages
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &HistoryLoader{
		conns:   d.Connections,
		store:   d.Store,
		cache:   d.Cache,
		names:   d.Names,
		rooms:   d.Rooms,
		directs: d.Directs,
		cfg:     cfg,
		log:     d.Logger.WithModule("history"),
	}
}

// OnJoin sends the backlog of key to participantID and returns how many
// messages were sent. It stops at the first failed send.
func (l *HistoryLoader) OnJoin(ctx context.Context, participantID string, key domain.RoomKey, backlog domain.Backlog) (int, error) {
	msgs := l.load(ctx, key, backlog)

	sent := 0
	for _, m := range msgs {
		data, err := l.render(ctx, m)
		if err != nil {
			l.log.Errorf("Failed to render message %s: %v", m.ID, err)
			continue
		}
		if err := l.conns.Send(participantID, data); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		l.log.WithFields(map[string]interface{}{
			"participant_id": participantID,
			"room":           key.String(),
			"count":          sent,
		}).Debugf("History replayed")
	}
	return sent, nil
}

// load returns the messages to replay. A buffer that was never filled from the
// store is merged with the persisted tail, cut at the join boundary so that
// messages posted after the join are left to live delivery.
func (l *HistoryLoader) load(ctx context.Context, key domain.RoomKey, backlog domain.Backlog) []domain.Message {
	if backlog.Hydrated || l.store == nil {
		return tail(backlog.Messages, l.cfg.Limit)
	}

	fetched, err := l.store.FetchRecent(ctx, key, l.cfg.Limit)
	if err != nil {
		l.log.Warnf("Failed to load history for %s, replaying buffer only: %v", key, err)
		return tail(backlog.Messages, l.cfg.Limit)
	}

	before := make([]domain.Message, 0, len(fetched))
	for _, m := range fetched {
		if backlog.Boundary == "" || m.ID < backlog.Boundary {
			before = append(before, m)
		}
	}
	merged := domain.MergeMessages(l.cfg.Limit, before, backlog.Messages)

	if h := l.hydrator(key); h != nil {
		h.Hydrate(key, merged)
	}
	return merged
}

func (l *HistoryLoader) hydrator(key domain.RoomKey) Hydrator {
	if key.Type == domain.RoomTypeDirect {
		return l.directs
	}
	return l.rooms
}

// render returns the historical payload for m, from the cache when possible.
func (l *HistoryLoader) render(ctx context.Context, m domain.Message) ([]byte, error) {
	if l.cache != nil {
		data, ok, err := l.cache.Get(ctx, m.ID)
		if err != nil {
			l.log.Debugf("Cache lookup for %s failed: %v", m.ID, err)
		} else if ok {
			return data, nil
		}
	}

	v, err, _ := l.sf.Do(m.ID, func() (interface{}, error) {
		p := domain.NewMessagePayload(domain.PayloadHistorical, m, l.names.Resolve(ctx, m.SenderID))
		data, err := p.Encode()
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			if err := l.cache.Set(ctx, m.ID, data, l.cfg.CacheTTL); err != nil {
				l.log.Debugf("Cache fill for %s failed: %v", m.ID, err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func tail(msgs []domain.Message, n int) []domain.Message {
	if n > 0 && len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}
