package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

var (
	ErrPersistQueueFull = errors.New("persist queue full")
	ErrPersisterStopped = errors.New("persister stopped")
)

type PersisterConfig struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		Workers:      4,
		QueueSize:    1024,
		WriteTimeout: 5 * time.Second,
	}
}

// Persister writes messages to the store from a bounded queue so a slow
// store never delays delivery.
type Persister struct {
	store port.MessageStore
	cfg   PersisterConfig
	log   logger.Logger

	queue   chan domain.Message
	mu      sync.RWMutex
	running bool
	closed  bool
	wg      sync.WaitGroup
}

func NewPersister(store port.MessageStore, cfg PersisterConfig, log logger.Logger) *Persister {
	d := DefaultPersisterConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	return &Persister{
		store: store,
		cfg:   cfg,
		log:   log.WithModule("persister"),
		queue: make(chan domain.Message, cfg.QueueSize),
	}
}

func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.closed {
		return
	}
	p.running = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Infof("Persister started with %d workers", p.cfg.Workers)
}

// Enqueue hands msg to the workers without blocking.
func (p *Persister) Enqueue(msg domain.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPersisterStopped
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrPersistQueueFull
	}
}

// Stop closes the queue and waits for the workers to drain it or for ctx to expire.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Infof("Persister stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("persister stop: %w", ctx.Err())
	}
}

func (p *Persister) Pending() int {
	return len(p.queue)
}

func (p *Persister) worker(id int) {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		if err := p.store.SaveMessage(ctx, msg); err != nil {
			p.log.WithFields(map[string]interface{}{
				"worker":     id,
				"message_id": msg.ID,
				"room":       msg.Key().String(),
			}).Errorf("%v", fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err))
		}
		cancel()
	}
}
