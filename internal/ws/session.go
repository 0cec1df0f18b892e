package ws

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the session lifecycle state. There is no transition out of
// StateClosed.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Session is one live subscriber connection. Owned exclusively by the
// Manager; group membership lives in the Manager's maps.
type Session struct {
	ID          string
	ClientType  string
	ConnectedAt time.Time

	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos
	dropped      atomic.Uint64
}

func newSession(conn *websocket.Conn, clientType string, queueSize int) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		ClientType:  clientType,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	s.touch()
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// transition moves to next only from expected states; returns whether the
// move happened. Closed is terminal.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActivity.Load()))
}

// enqueue places a marshalled message on the outbound queue without ever
// blocking the caller. A full queue sheds the oldest queued message for
// this session. Returns false if the session is not open.
func (s *Session) enqueue(b []byte) bool {
	if s.State() != StateOpen {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
	}

	// Shed the oldest message to make room, then retry once.
	select {
	case <-s.send:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}
