package gateway

import (
	"log"
	"sync"

	"cardroom/internal/auth"
	"cardroom/internal/codec"
	"cardroom/internal/match"
)

// Session is one authenticated connection. It lives exactly as long as the
// transport does; reconnecting builds a new Session that resumes the same
// account.
type Session struct {
	ConnID  uint64
	Account auth.Account

	conn    MessageConn
	gateway *Gateway

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu          sync.Mutex
	outstanding map[uint64]struct{} // correlation ids currently being served
	badFrames   int
	rooms       map[uint64]struct{}
	games       map[uint64]*match.Subscription
}

func newSession(connID uint64, account auth.Account, conn MessageConn, g *Gateway) *Session {
	return &Session{
		ConnID:      connID,
		Account:     account,
		conn:        conn,
		gateway:     g,
		send:        make(chan []byte, sendQueueSize),
		closed:      make(chan struct{}),
		outstanding: make(map[uint64]struct{}),
		rooms:       make(map[uint64]struct{}),
		games:       make(map[uint64]*match.Subscription),
	}
}

// enqueue hands a payload to the write pump. A full queue means the client
// cannot keep up; the connection is torn down rather than blocking anything
// upstream.
func (s *Session) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	case <-s.closed:
	default:
		log.Printf("[Gateway] conn %d send queue overflow, closing", s.ConnID)
		s.close()
	}
}

func (s *Session) enqueueResponse(resp codec.ResponseEnvelope) {
	payload, err := codec.EncodeResponse(resp)
	if err != nil {
		log.Printf("[Gateway] conn %d encode response failed: %v", s.ConnID, err)
		return
	}
	s.enqueue(payload)
}

func (s *Session) enqueueEvent(env codec.EventEnvelope) {
	payload, err := codec.EncodeEvent(env)
	if err != nil {
		log.Printf("[Gateway] conn %d encode event failed: %v", s.ConnID, err)
		return
	}
	s.enqueue(payload)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// claimCorrelation reserves an in-flight correlation id. Reusing an id that
// has not completed yet is a protocol violation.
func (s *Session) claimCorrelation(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, inFlight := s.outstanding[id]; inFlight {
		return false
	}
	s.outstanding[id] = struct{}{}
	return true
}

func (s *Session) releaseCorrelation(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outstanding, id)
}

// countBadFrame bumps the malformed-input counter; too many and the caller
// should hang up.
func (s *Session) countBadFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badFrames++
	return s.badFrames >= maxBadFrames
}

func (s *Session) bindRoom(roomID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) unbindRoom(roomID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Session) inRoom(roomID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// bindGame records a match subscription and pumps its feed into the send
// queue. The pump ends when the subscription channel closes, either on
// unsubscribe or on overflow teardown.
func (s *Session) bindGame(gameID uint64, sub *match.Subscription) {
	s.mu.Lock()
	if old, ok := s.games[gameID]; ok && old != sub {
		// replaced by a fresh subscription; the old pump drains out
		delete(s.games, gameID)
	}
	s.games[gameID] = sub
	s.mu.Unlock()

	go func() {
		for env := range sub.Events() {
			s.enqueueEvent(env)
		}
	}()
}

func (s *Session) boundGames() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	return ids
}
