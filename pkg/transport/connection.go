package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is the callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// OnCloseHandler is the callback executed once when the connection terminates.
type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
	SendBuffer  int
}

// Sender is the outbound half of a connection, the part the fan-out layer
// needs. The concrete Connection satisfies it; tests substitute their own.
type Sender interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// sendMu orders Send against Close: once closed is set the send channel
	// may no longer be written to.
	sendMu sync.Mutex
	closed bool

	logger *slog.Logger
}

var _ Sender = (*Connection)(nil)

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 60 * time.Second
	}

	return &Connection{
		id:        id,
		conn:      conn,
		config:    config,
		send:      make(chan []byte, config.SendBuffer),
		onMessage: onMessage,
		onClose:   onClose,
		done:      make(chan struct{}),
		wg:        wg,
		ctx:       connCtx,
		cancel:    cancel,
		logger:    logger.With(slog.String("connID", id.String())),
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "server closing")
			return
		}
	}
}

// Send queues a message for delivery to the client. It is safe for concurrent
// use, including racing Close, and never blocks: a message for a closed or
// saturated connection is dropped.
func (c *Connection) Send(message []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		c.logger.Debug("dropping send on closed connection")
		return
	}
	select {
	case c.send <- message:
	default:
		c.logger.Warn("send buffer full, dropping message")
	}
}

// Close gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		c.cancel()
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}
