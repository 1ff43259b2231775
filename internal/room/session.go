package room

import (
	"sync"
	"time"
)

// Session is one live transport connection. The transport assigns the id at
// accept time; participant and room are bound exactly once, when the client
// joins. The registry references sessions but never owns their lifecycle.
type Session struct {
	id          string
	connectedAt time.Time

	out chan []byte

	mu            sync.Mutex
	participantID string
	roomID        string
	left          bool
	closed        bool
}

// NewSession wraps a freshly accepted connection. sendBuffer is the outbound
// queue length; once full, further messages to this session are dropped.
func NewSession(id string, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Session{
		id:          id,
		connectedAt: time.Now(),
		out:         make(chan []byte, sendBuffer),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// ParticipantID returns the identity bound at join time, or "" before join.
func (s *Session) ParticipantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantID
}

// RoomID returns the room bound at join time, or "" before join.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Joined reports whether the session has ever joined a room. It stays true
// after leaving: the Connected→Joined transition happens at most once.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != ""
}

func (s *Session) bind(roomID, participantID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.participantID = participantID
	s.mu.Unlock()
}

func (s *Session) markLeft() {
	s.mu.Lock()
	s.left = true
	s.mu.Unlock()
}

// Left reports whether the session has gone through the leave sequence.
func (s *Session) Left() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// Outbound is drained by the transport's write loop. The channel is closed
// by CloseOutbound once the session can no longer receive messages.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Enqueue queues an outbound payload without blocking. It returns false when
// the buffer is full or the outbound side is already closed; the caller
// counts such drops, it never retries.
func (s *Session) Enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- payload:
		return true
	default:
		return false
	}
}

// CloseOutbound closes the outbound channel, stopping the write loop. Safe
// to call more than once. Must only be called after the session has been
// removed from its room, so no fan-out can still reach it.
func (s *Session) CloseOutbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}
