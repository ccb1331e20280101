/*
Package collab contains the real-time collaboration engine.

This file defines Connection, the WebSocket-backed Conn. Outbound frames are queued
on a bounded channel drained by WritePump; a full queue fails the send instead of
blocking the registry. ReadPump feeds inbound frames to a handler and disconnects
the connection when the socket closes.
*/
package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrConnectionClosed is returned by Send after Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendQueueFull is returned by Send when the client is not keeping up.
	ErrSendQueueFull = errors.New("send queue full")
)

// Connection is a live WebSocket client.
type Connection struct {
	id string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be written.
	send chan []byte

	// mu guards closed and the close of send.
	mu     sync.Mutex
	closed bool

	maxMessageBytes int64

	// structured logger with connection, session and user context.
	logger zerolog.Logger
}

// NewConnection wraps an upgraded socket. The session and user ids only tag log lines.
func NewConnection(wsConn *websocket.Conn, sessionID, userID string, queueSize int, maxMessageBytes int64) *Connection {
	id := randx.NewID()

	return &Connection{
		id:              id,
		conn:            wsConn,
		send:            make(chan []byte, queueSize),
		maxMessageBytes: maxMessageBytes,
		logger: logx.Logger().With().
			Str("component", "Connection").
			Str("connection_id", id).
			Str("session_id", sessionID).
			Str("user_id", userID).
			Logger(),
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Send queues data for writing. It never blocks.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full.")
		return ErrSendQueueFull
	}
}

// Close stops accepting frames. Queued frames are still written, followed by a
// close frame. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// ReadPump reads frames until the socket fails or closes, passing each one to handle.
// onClose runs exactly once when reading stops.
func (c *Connection) ReadPump(handle func(Conn, []byte), onClose func(Conn)) {
	defer func() {
		onClose(c)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in ReadPump")
		}
	}()

	c.conn.SetReadLimit(c.maxMessageBytes)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		handle(c, data)
	}
}

// WritePump writes queued frames and periodic pings until the queue is closed or a
// write fails. A failed write closes the connection so later sends fail fast.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.Close()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one frame, or the close frame once the queue is closed.
// Returns false when WritePump should stop.
func (c *Connection) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a heartbeat ping. Returns false when WritePump should stop.
func (c *Connection) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
