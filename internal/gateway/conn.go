package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var errSendBufferFull = errors.New("connection send buffer full")

// conn is one websocket connection. It implements the log stream sink and
// the broadcast sink so that a single send queue preserves per-connection
// ordering across both feeds.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id string, ws *websocket.Conn, logger zerolog.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With().Str("connection_id", id).Logger(),
		closed: make(chan struct{}),
	}
}

// enqueue places a frame on the send queue without blocking. A client that
// lets the queue fill cannot keep up; the connection is closed so the read
// pump runs the disconnect cleanup, rather than silently losing frames.
func (c *conn) enqueue(frame Frame) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- encodeFrame(frame):
		return nil
	default:
		c.logger.Warn().Str("frame", frame.Type).Msg("send buffer full, closing connection")
		c.markClosed()
		return errSendBufferFull
	}
}

// ReceiveLogs implements the stream sink.
func (c *conn) ReceiveLogs(chunk string) error {
	return c.enqueue(Frame{Type: frameLogs, Data: chunk})
}

// StreamComplete implements the stream sink.
func (c *conn) StreamComplete() {
	if err := c.enqueue(Frame{Type: frameComplete}); err != nil {
		c.logger.Debug().Err(err).Msg("dropping stream completion frame")
	}
}

// LogError implements the stream sink.
func (c *conn) LogError(message string) {
	if err := c.enqueue(Frame{Type: frameError, Message: message}); err != nil {
		c.logger.Debug().Err(err).Msg("dropping stream error frame")
	}
}

// Deliver implements the broadcast sink.
func (c *conn) Deliver(payload ops.Progress) error {
	return c.enqueue(Frame{Type: frameOperation, Operation: &payload})
}

// markClosed stops enqueueing and wakes the write pump.
func (c *conn) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// writePump drains the send queue to the socket and keeps the peer alive
// with pings. It owns all writes to the socket.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
