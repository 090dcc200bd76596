package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsClient owns one websocket. Frames are queued by Send and written by a
// single writer goroutine, so a slow socket never blocks a publisher.
type wsClient struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       zerolog.Logger
}

func newWSClient(id string, conn *websocket.Conn, bufferSize int, writeTimeout, pingInterval time.Duration, logger zerolog.Logger) *wsClient {
	return &wsClient{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Send queues a frame without blocking.
func (c *wsClient) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// writePump drains the send buffer until the client is closed.
func (c *wsClient) writePump() {
	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing connection.")
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed, closing connection.")
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown stops the writer and closes the socket, sending a close frame
// first when code is a sendable close code. Safe to call repeatedly.
func (c *wsClient) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		}
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("error closing connection")
		}
	})
}
