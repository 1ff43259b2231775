// Package room owns the authoritative mapping from room identifiers to
// connected sessions. All membership mutation and all message delivery go
// through the Registry; per-room locking keeps the sequence of fan-outs
// observed by members identical for every member of a room while letting
// distinct rooms proceed fully in parallel.
package room

import (
	"errors"
	"sync"

	"github.com/openmeet/roomrelay/internal/metrics"
)

var (
	// ErrAlreadyJoined is returned when a session that already joined a room
	// attempts another join. The transition to Joined happens at most once.
	ErrAlreadyJoined = errors.New("session already joined a room")

	// ErrDuplicateParticipant is returned when the participant id is already
	// claimed inside the target room. Point-to-point routing would be
	// ambiguous otherwise.
	ErrDuplicateParticipant = errors.New("participant id already present in room")

	// ErrUnknownTarget is returned when a point-to-point message addresses a
	// participant that is not a member of the room. This is an expected race
	// (the peer may have just disconnected), not a fault.
	ErrUnknownTarget = errors.New("no such participant in room")

	// ErrBufferFull is returned when the target session's outbound queue is
	// full and the message was dropped.
	ErrBufferFull = errors.New("session outbound buffer full")

	ErrRoomFull     = errors.New("room is full")
	ErrTooManyRooms = errors.New("too many rooms")
)

// Limits are the optional capacity quotas; zero disables a quota.
type Limits struct {
	MaxRooms       int
	MaxRoomMembers int
}

type Registry struct {
	limits  Limits
	metrics *metrics.Metrics

	mu    sync.RWMutex
	rooms map[string]*roomState
}

// roomState is created lazily on first join and removed when the member set
// becomes empty. members is kept in join order; byParticipant indexes the
// same sessions for point-to-point lookup.
type roomState struct {
	id string

	mu            sync.Mutex
	members       []*Session
	byParticipant map[string]*Session
}

func newRoomState(id string) *roomState {
	return &roomState{
		id:            id,
		byParticipant: make(map[string]*Session),
	}
}

// NewRegistry builds a Registry. m may be nil (no gauge updates), which the
// unit tests use.
func NewRegistry(limits Limits, m *metrics.Metrics) *Registry {
	return &Registry{
		limits:  limits,
		metrics: m,
		rooms:   make(map[string]*roomState),
	}
}

// Join adds the session to the room, creating the room if absent. The
// session must not have joined before; the participant id must be unique
// within the room.
//
// Lock order is registry.mu before roomState.mu everywhere, and rooms are
// only deleted while both are held, so a room looked up under registry.mu
// cannot disappear before its lock is taken here.
func (r *Registry) Join(roomID, participantID string, s *Session) error {
	if s.Joined() {
		return ErrAlreadyJoined
	}

	r.mu.Lock()
	rm := r.rooms[roomID]
	created := false
	if rm == nil {
		if r.limits.MaxRooms > 0 && len(r.rooms) >= r.limits.MaxRooms {
			r.mu.Unlock()
			return ErrTooManyRooms
		}
		rm = newRoomState(roomID)
		r.rooms[roomID] = rm
		created = true
	}
	rm.mu.Lock()

	if _, taken := rm.byParticipant[participantID]; taken {
		rm.mu.Unlock()
		if created {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		return ErrDuplicateParticipant
	}
	if r.limits.MaxRoomMembers > 0 && len(rm.members) >= r.limits.MaxRoomMembers {
		rm.mu.Unlock()
		if created {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		return ErrRoomFull
	}

	s.bind(roomID, participantID)
	rm.members = append(rm.members, s)
	rm.byParticipant[participantID] = s

	rm.mu.Unlock()
	r.updateRoomsGaugeLocked()
	r.mu.Unlock()
	return nil
}

// Leave removes the session from its room and returns the room id plus the
// remaining members in join order, so the caller can notify them. The room
// is deleted once the member set is empty. Leaving a session that never
// joined, or already left, is a no-op.
func (r *Registry) Leave(s *Session) (string, []*Session) {
	if !s.Joined() || s.Left() {
		return "", nil
	}
	roomID := s.RoomID()

	r.mu.Lock()
	rm := r.rooms[roomID]
	if rm == nil {
		r.mu.Unlock()
		s.markLeft()
		return "", nil
	}
	rm.mu.Lock()

	removed := false
	for i, member := range rm.members {
		if member == s {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			delete(rm.byParticipant, s.ParticipantID())
			removed = true
			break
		}
	}
	s.markLeft()

	var remaining []*Session
	if removed {
		remaining = append(remaining, rm.members...)
	}
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}

	rm.mu.Unlock()
	r.updateRoomsGaugeLocked()
	r.mu.Unlock()

	if !removed {
		return "", nil
	}
	return roomID, remaining
}

// Members returns the room's member sessions in join order. A missing room
// yields an empty slice.
func (r *Registry) Members(roomID string) []*Session {
	return r.MembersExcept(roomID, nil)
}

// MembersExcept returns the room's members in join order, excluding the
// given session.
func (r *Registry) MembersExcept(roomID string, except *Session) []*Session {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]*Session, 0, len(rm.members))
	for _, member := range rm.members {
		if member != except {
			out = append(out, member)
		}
	}
	return out
}

// Find resolves a participant id within a room. Sessions in other rooms are
// never considered, even when they share the participant id string.
func (r *Registry) Find(roomID, participantID string) (*Session, bool) {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	s, ok := rm.byParticipant[participantID]
	return s, ok
}

// Broadcast enqueues the payload to every member of the room except the
// sender. Delivery happens under the room lock so all members observe the
// same per-room message order. Returns how many members received it and how
// many drops happened because of full outbound buffers.
func (r *Registry) Broadcast(roomID string, except *Session, payload []byte) (sent, dropped int) {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0, 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, member := range rm.members {
		if member == except {
			continue
		}
		if member.Enqueue(payload) {
			sent++
		} else {
			dropped++
		}
	}
	return sent, dropped
}

// SendToParticipant enqueues the payload to exactly the member with the
// given participant id. ErrUnknownTarget when no such member exists;
// ErrBufferFull when the member's outbound queue rejected the message.
func (r *Registry) SendToParticipant(roomID, participantID string, payload []byte) error {
	rm := r.lookup(roomID)
	if rm == nil {
		return ErrUnknownTarget
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	target, ok := rm.byParticipant[participantID]
	if !ok {
		return ErrUnknownTarget
	}
	if !target.Enqueue(payload) {
		return ErrBufferFull
	}
	return nil
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) lookup(roomID string) *roomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) updateRoomsGaugeLocked() {
	if r.metrics != nil {
		r.metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
}
