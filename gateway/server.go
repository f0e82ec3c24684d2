// Package gateway relays machine commands from websocket clients to a
// link, and replies with the decoded responses.
package gateway

import (
	"errors"
	"net/http"
	"sync"

	link "github.com/basilfx/go-gcode-link"
	"github.com/gorilla/websocket"
	"github.com/twinj/uuid"

	log "github.com/sirupsen/logrus"
)

// Server accepts websocket connections and runs a session for each of
// them. All sessions share the same link.
type Server struct {
	link     *link.Link
	config   Config
	upgrader websocket.Upgrader

	sessions map[string]*Session
	lock     sync.Mutex
	wg       sync.WaitGroup
	closed   bool
}

// NewServer returns a new server for the given link.
func NewServer(l *link.Link, config Config) *Server {
	return &Server{
		link:   l,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: map[string]*Session{},
	}
}

// ServeHTTP upgrades the request and serves the session until the client
// goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)

	if err != nil {
		log.Errorf("Unable to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	session := newSession(uuid.NewV4().String(), NewSocket(conn), s.link, s.config)

	if !s.register(session) {
		session.handle.Release()
		session.socket.Close()
		return
	}

	defer s.unregister(session)

	session.log.Infof("New connection from %s.", session.socket.RemoteAddr())

	if err := session.Serve(); err != nil && !errors.Is(err, ErrConnectionClosed) {
		session.log.Errorf("Error processing connection: %v", err)
	}
}

func (s *Server) register(session *Session) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return false
	}

	s.sessions[session.id] = session
	s.wg.Add(1)

	return true
}

func (s *Server) unregister(session *Session) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.sessions[session.id]; !ok {
		return
	}

	delete(s.sessions, session.id)
	s.wg.Done()
}

// Sessions returns the number of active sessions.
func (s *Server) Sessions() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.sessions)
}

// Close all sessions and wait for them to stop. New connections are
// refused afterwards.
func (s *Server) Close() {
	s.lock.Lock()
	s.closed = true

	for _, session := range s.sessions {
		session.Close()
	}

	s.lock.Unlock()

	s.wg.Wait()
}
