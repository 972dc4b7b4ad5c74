package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	maxCommandSize   = 1024
	defaultPingEvery = 30 * time.Second
)

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *Handler) pingInterval() time.Duration {
	if h.cfg.WS.PingInterval > 0 {
		return h.cfg.WS.PingInterval
	}
	return defaultPingEvery
}

// keepAlive pings the peer until done is closed. A peer that stops answering
// runs into the read deadline and ends the read loop.
func (h *Handler) keepAlive(c *wsConn, done <-chan struct{}) {
	interval := h.pingInterval()

	c.conn.SetReadDeadline(time.Now().Add(2 * interval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * interval))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					c.conn.Close()
					return
				}
			}
		}
	}()
}
