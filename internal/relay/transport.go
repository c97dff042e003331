package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one side of the bridge. Implementations must serialize writes;
// reads are only ever issued from a single pump.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// wsTransport wraps a gorilla WebSocket connection with a single writer lock,
// so the two pumps never interleave partial frames on the same handle.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSTransport wraps an accepted or dialed WebSocket connection.
func NewWSTransport(conn *websocket.Conn) Transport {
	return newWSTransport(conn)
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{
		conn: conn,
		done: make(chan struct{}),
	}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// startPing keeps the connection alive with periodic ping control frames.
// Control writes are safe concurrently with WriteJSON.
func (t *wsTransport) startPing(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(interval)
				if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()
}
