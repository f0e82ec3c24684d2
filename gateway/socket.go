package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WriteTimeout bounds a single write to a client.
const WriteTimeout = 10 * time.Second

// Socket wraps a websocket connection so it can be written and closed from
// different goroutines.
type Socket struct {
	wmu       sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewSocket returns a new socket for conn.
func NewSocket(conn *websocket.Conn) *Socket {
	return &Socket{conn: conn}
}

// ReadMessage reads the next frame. It must be called from one goroutine
// only.
func (s *Socket) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

// WriteJSON writes v as a text frame.
func (s *Socket) WriteJSON(v interface{}) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}

	return s.conn.WriteJSON(v)
}

// Close sends a close frame and closes the connection. It is safe to call
// Close more than once.
func (s *Socket) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.wmu.Lock()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.wmu.Unlock()

		err = s.conn.Close()
	})

	return err
}

// RemoteAddr returns the address of the client.
func (s *Socket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
