package service

import (
	"context"
	"sync"

	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// NameDirectory resolves participant ids to display names. Names learned on
// connect are kept in memory and, when a NameStore is configured, shared
// through it so history rendered by another process resolves too.
type NameDirectory struct {
	mu    sync.RWMutex
	local map[string]string
	store port.NameStore
	sf    singleflight.Group
	log   logger.Logger
}

func NewNameDirectory(store port.NameStore, log logger.Logger) *NameDirectory {
	return &NameDirectory{
		local: make(map[string]string),
		store: store,
		log:   log.WithModule("names"),
	}
}

func (d *NameDirectory) Remember(ctx context.Context, participantID, name string) {
	if name == "" {
		name = participantID
	}
	d.mu.Lock()
	d.local[participantID] = name
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.SetDisplayName(ctx, participantID, name); err != nil {
			d.log.Warnf("Failed to store display name for %s: %v", participantID, err)
		}
	}
}

// Resolve returns the display name for participantID, falling back to the id itself.
func (d *NameDirectory) Resolve(ctx context.Context, participantID string) string {
	d.mu.RLock()
	name, ok := d.local[participantID]
	d.mu.RUnlock()
	if ok {
		return name
	}
	if d.store == nil {
		return participantID
	}

	v, _, _ := d.sf.Do(participantID, func() (interface{}, error) {
		name, found, err := d.store.GetDisplayName(ctx, participantID)
		if err != nil {
			d.log.Warnf("Failed to resolve display name for %s: %v", participantID, err)
			return participantID, nil
		}
		if !found {
			return participantID, nil
		}
		d.mu.Lock()
		d.local[participantID] = name
		d.mu.Unlock()
		return name, nil
	})
	return v.(string)
}
