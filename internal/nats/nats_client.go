package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSClient struct {
	Conn       *nats.Conn
	SubMapping map[string]*nats.Subscription // keyed by subject:subscriber
	mu         sync.Mutex
}

func NewNATSClient(url string) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.Name("roomchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{
		Conn:       nc,
		SubMapping: make(map[string]*nats.Subscription),
	}, nil
}

func (c *NATSClient) Flush() error {
	return c.Conn.Flush()
}

func (c *NATSClient) Close() {
	c.CleanupSubscriptions()
	c.Conn.Close()
}
