package broadcast

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// subscriberState tracks a connection's position in the auth state machine
// (§4.6): AwaitingAuth -> ValidatingKey -> Authenticated, or Closed at any
// point along the way.
type subscriberState int32

const (
	stateAwaitingAuth subscriberState = iota
	stateValidatingKey
	stateAuthenticated
	stateClosed
)

// sendBufferSize bounds how many pending frames a subscriber may queue
// before broadcast starts skipping it (§4.6: "never block the producer").
const sendBufferSize = 256

// subscriber is one live push connection.
type subscriber struct {
	id     int64
	conn   net.Conn
	send   chan []byte
	state  atomic.Int32
	authAt time.Time

	closeOnce sync.Once
}

func newSubscriber(id int64, conn net.Conn) *subscriber {
	s := &subscriber{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	s.state.Store(int32(stateAwaitingAuth))
	return s
}

func (s *subscriber) setState(st subscriberState) {
	s.state.Store(int32(st))
}

func (s *subscriber) currentState() subscriberState {
	return subscriberState(s.state.Load())
}

// tryEnqueue performs a non-blocking send; returns false if the subscriber's
// buffer is full, in which case the caller skips it rather than block.
func (s *subscriber) tryEnqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// closeConn closes the underlying connection exactly once, safe to call
// from both the read side and the write side.
func (s *subscriber) closeConn() {
	s.closeOnce.Do(func() {
		s.setState(stateClosed)
		s.conn.Close()
	})
}
