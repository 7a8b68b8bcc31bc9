package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait   = 10 * time.Second
	sendBufSize = 256
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// clientConn owns one websocket. All writes go through the send queue and
// are performed by writePump, so frames leave in the order they were queued.
type clientConn struct {
	id      string
	rawConn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClientConn(id string, raw *websocket.Conn) *clientConn {
	return &clientConn{
		id:      id,
		rawConn: raw,
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
	}
}

// Send queues one frame without blocking. A client that cannot keep up is
// disconnected rather than allowed to stall the room.
func (c *clientConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		zap.L().Warn("ws.send_buffer_full", zap.String("conn_id", c.id))
		c.close()
		return errSendBufferFull
	}
}

func (c *clientConn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.rawConn.Close()
	})
}

// writePump drains the send queue and pings the peer every pingPeriod.
func (c *clientConn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.TextMessage, data); err != nil {
				zap.L().Debug("ws.write", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				zap.L().Debug("ws.ping", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		}
	}
}
