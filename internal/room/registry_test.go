package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestSession(t *testing.T, id string) *Session {
	t.Helper()
	return NewSession(id, 16)
}

func mustJoin(t *testing.T, r *Registry, roomID, participantID string, s *Session) {
	t.Helper()
	if err := r.Join(roomID, participantID, s); err != nil {
		t.Fatalf("join %s/%s: %v", roomID, participantID, err)
	}
}

func participantIDs(sessions []*Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ParticipantID())
	}
	return out
}

func TestJoinOrderIsPreserved(t *testing.T) {
	r := NewRegistry(Limits{}, nil)

	for i := 0; i < 5; i++ {
		pid := fmt.Sprintf("p%d", i)
		mustJoin(t, r, "r1", pid, newTestSession(t, pid))
	}

	got := participantIDs(r.Members("r1"))
	want := []string{"p0", "p1", "p2", "p3", "p4"}
	if len(got) != len(want) {
		t.Fatalf("members=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("members=%v, want %v", got, want)
		}
	}
}

func TestJoinRejectsSecondJoin(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	s := newTestSession(t, "s1")

	mustJoin(t, r, "r1", "alice", s)

	if err := r.Join("r1", "alice2", s); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("re-join same room: err=%v, want ErrAlreadyJoined", err)
	}
	if err := r.Join("r2", "alice", s); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("join second room: err=%v, want ErrAlreadyJoined", err)
	}
	// The failed join must not create r2.
	if n := r.RoomCount(); n != 1 {
		t.Fatalf("RoomCount=%d, want 1", n)
	}
}

func TestJoinRejectsDuplicateParticipant(t *testing.T) {
	r := NewRegistry(Limits{}, nil)

	mustJoin(t, r, "r1", "alice", newTestSession(t, "s1"))

	dup := newTestSession(t, "s2")
	if err := r.Join("r1", "alice", dup); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("err=%v, want ErrDuplicateParticipant", err)
	}
	if dup.Joined() {
		t.Fatalf("rejected session must stay unbound")
	}

	// The same participant id in a different room is fine.
	mustJoin(t, r, "r2", "alice", dup)
}

func TestRoomQuotas(t *testing.T) {
	r := NewRegistry(Limits{MaxRooms: 1, MaxRoomMembers: 2}, nil)

	mustJoin(t, r, "r1", "a", newTestSession(t, "s1"))
	mustJoin(t, r, "r1", "b", newTestSession(t, "s2"))

	if err := r.Join("r1", "c", newTestSession(t, "s3")); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err=%v, want ErrRoomFull", err)
	}
	if err := r.Join("r2", "a", newTestSession(t, "s4")); !errors.Is(err, ErrTooManyRooms) {
		t.Fatalf("err=%v, want ErrTooManyRooms", err)
	}
}

func TestLeaveReturnsRemainderAndDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	a := newTestSession(t, "sa")
	b := newTestSession(t, "sb")
	c := newTestSession(t, "sc")

	mustJoin(t, r, "r1", "a", a)
	mustJoin(t, r, "r1", "b", b)
	mustJoin(t, r, "r1", "c", c)

	roomID, remaining := r.Leave(b)
	if roomID != "r1" {
		t.Fatalf("roomID=%q, want r1", roomID)
	}
	got := participantIDs(remaining)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("remaining=%v, want [a c]", got)
	}

	r.Leave(a)
	if _, remaining := r.Leave(c); len(remaining) != 0 {
		t.Fatalf("last leave remaining=%v, want empty", remaining)
	}

	if n := r.RoomCount(); n != 0 {
		t.Fatalf("RoomCount=%d, want 0 after last member left", n)
	}
	if members := r.Members("r1"); len(members) != 0 {
		t.Fatalf("Members after delete=%v, want empty", members)
	}

	// The id can be reused by a fresh room.
	mustJoin(t, r, "r1", "x", newTestSession(t, "sx"))
	if got := participantIDs(r.Members("r1")); len(got) != 1 || got[0] != "x" {
		t.Fatalf("recreated room members=%v, want [x]", got)
	}
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	s := newTestSession(t, "s1")

	roomID, remaining := r.Leave(s)
	if roomID != "" || remaining != nil {
		t.Fatalf("Leave before join = %q/%v, want empty", roomID, remaining)
	}

	// Double leave is also a no-op.
	mustJoin(t, r, "r1", "a", s)
	r.Leave(s)
	if roomID, remaining := r.Leave(s); roomID != "" || remaining != nil {
		t.Fatalf("second Leave = %q/%v, want empty", roomID, remaining)
	}
}

func TestFindIsScopedToRoom(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	a := newTestSession(t, "sa")
	b := newTestSession(t, "sb")

	mustJoin(t, r, "r1", "alice", a)
	mustJoin(t, r, "r2", "alice", b)

	got, ok := r.Find("r1", "alice")
	if !ok || got != a {
		t.Fatalf("Find(r1, alice)=%v,%v; want session sa", got, ok)
	}
	got, ok = r.Find("r2", "alice")
	if !ok || got != b {
		t.Fatalf("Find(r2, alice)=%v,%v; want session sb", got, ok)
	}
	if _, ok := r.Find("r3", "alice"); ok {
		t.Fatalf("Find in missing room must fail")
	}
	if _, ok := r.Find("r1", "bob"); ok {
		t.Fatalf("Find of missing participant must fail")
	}
}

func TestBroadcastSkipsSenderAndCountsDrops(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	a := NewSession("sa", 16)
	b := NewSession("sb", 16)
	full := NewSession("sc", 1)

	mustJoin(t, r, "r1", "a", a)
	mustJoin(t, r, "r1", "b", b)
	mustJoin(t, r, "r1", "c", full)

	if !full.Enqueue([]byte("x")) {
		t.Fatalf("priming enqueue failed")
	}

	sent, dropped := r.Broadcast("r1", a, []byte("hello"))
	if sent != 1 || dropped != 1 {
		t.Fatalf("sent=%d dropped=%d, want 1/1", sent, dropped)
	}

	select {
	case payload := <-b.Outbound():
		if string(payload) != "hello" {
			t.Fatalf("payload=%q", payload)
		}
	default:
		t.Fatalf("b received nothing")
	}
	select {
	case <-a.Outbound():
		t.Fatalf("sender must not receive its own broadcast")
	default:
	}
}

func TestSendToParticipant(t *testing.T) {
	r := NewRegistry(Limits{}, nil)
	a := newTestSession(t, "sa")
	b := newTestSession(t, "sb")

	mustJoin(t, r, "r1", "a", a)
	mustJoin(t, r, "r2", "a", b)

	if err := r.SendToParticipant("r1", "a", []byte("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case payload := <-a.Outbound():
		if string(payload) != "hi" {
			t.Fatalf("payload=%q", payload)
		}
	default:
		t.Fatalf("target received nothing")
	}
	select {
	case <-b.Outbound():
		t.Fatalf("same participant id in another room must not receive")
	default:
	}

	if err := r.SendToParticipant("r1", "ghost", []byte("hi")); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err=%v, want ErrUnknownTarget", err)
	}
	if err := r.SendToParticipant("nowhere", "a", []byte("hi")); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err=%v, want ErrUnknownTarget", err)
	}
}

func TestEnqueueAfterCloseIsSafe(t *testing.T) {
	s := NewSession("s1", 2)
	if !s.Enqueue([]byte("a")) {
		t.Fatalf("enqueue failed")
	}
	s.CloseOutbound()
	s.CloseOutbound() // idempotent
	if s.Enqueue([]byte("b")) {
		t.Fatalf("enqueue after close must fail")
	}

	// Buffered payloads drain, then the channel reports closed.
	if payload, ok := <-s.Outbound(); !ok || string(payload) != "a" {
		t.Fatalf("drain=%q/%v", payload, ok)
	}
	if _, ok := <-s.Outbound(); ok {
		t.Fatalf("channel should be closed")
	}
}

func TestConcurrentJoinLeaveAcrossRooms(t *testing.T) {
	r := NewRegistry(Limits{}, nil)

	const rooms = 8
	const perRoom = 16

	var wg sync.WaitGroup
	for i := 0; i < rooms; i++ {
		roomID := fmt.Sprintf("room-%d", i)
		for j := 0; j < perRoom; j++ {
			wg.Add(1)
			go func(roomID string, j int) {
				defer wg.Done()
				s := NewSession(fmt.Sprintf("%s-s%d", roomID, j), 4)
				if err := r.Join(roomID, fmt.Sprintf("p%d", j), s); err != nil {
					t.Errorf("join: %v", err)
					return
				}
				r.Broadcast(roomID, s, []byte("ping"))
				r.Leave(s)
			}(roomID, j)
		}
	}
	wg.Wait()

	if n := r.RoomCount(); n != 0 {
		t.Fatalf("RoomCount=%d after all leaves, want 0", n)
	}
}
