package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/SphrGhfri/roomchat/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

type ConnConfig struct {
	SendQueueSize   int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SendQueueSize:   256,
		PingInterval:    25 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: 8192,
	}
}

func (c ConnConfig) withDefaults() ConnConfig {
	d := DefaultConnConfig()
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	return c
}

// Connection represents a single WebSocket connection to a client.
// Outbound frames go through a bounded queue drained by WritePump.
type Connection struct {
	ID  string
	ws  *websocket.Conn
	cfg ConnConfig
	log logger.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(ws *websocket.Conn, cfg ConnConfig, log logger.Logger) *Connection {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Connection{
		ID:   id,
		ws:   ws,
		cfg:  cfg,
		log:  log.WithFields(map[string]interface{}{"conn_id": id}),
		send: make(chan []byte, cfg.SendQueueSize),
		done: make(chan struct{}),
	}
}

// Send enqueues payload without blocking.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ReadPump delivers inbound text frames to onMessage until the socket fails or
// the connection is closed. onClose runs exactly once when the pump exits.
func (c *Connection) ReadPump(onMessage func([]byte), onClose func()) {
	defer func() {
		c.Close()
		c.ws.Close()
		if onClose != nil {
			onClose()
		}
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnf("Unexpected close: %v", err)
			} else {
				c.log.Debugf("Read loop finished: %v", err)
			}
			return
		}
		onMessage(data)
	}
}

// WritePump drains the send queue to the socket and keeps the peer alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warnf("Error sending message: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debugf("Ping failed: %v", err)
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued, so a final error frame reaches the client.
func (c *Connection) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
