package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agenthub/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxMessageSize = 1 << 20
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 100
)

// Conn abstracts the transport under a worker connection so the registry
// and coordinator can be exercised without a live websocket.
type Conn interface {
	Send(msg protocol.Message) error
	Close() error
}

// wsConn wraps a gorilla websocket with a buffered send channel and a
// write pump that owns all writes to the socket.
type wsConn struct {
	ws        *websocket.Conn
	sendCh    chan protocol.Message
	closeOnce sync.Once
	done      chan struct{}
	logger    *logrus.Entry
}

func newWSConn(ws *websocket.Conn, logger *logrus.Entry) *wsConn {
	c := &wsConn{
		ws:     ws,
		sendCh: make(chan protocol.Message, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

// Send queues a message for delivery. A full send buffer is an error,
// not a block; a slow worker must not stall the hub.
func (c *wsConn) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send channel full")
	}
}

// Close terminates the write pump and the underlying socket
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.ws.Close()
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Errorf("Failed to marshal %s message: %v", msg.Type, err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debugf("Write failed: %v", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("Ping failed: %v", err)
				return
			}

		case <-c.done:
			return
		}
	}
}
