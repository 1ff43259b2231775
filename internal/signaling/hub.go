package signaling

import (
	"errors"
	"log/slog"

	"github.com/openmeet/roomrelay/internal/metrics"
	"github.com/openmeet/roomrelay/internal/room"
)

// Hub drives the session lifecycle and routes every inbound message. It is
// deliberately permissive: malformed messages, stale targets and duplicate
// joins are counted and dropped, never surfaced to the peer or fatal to the
// connection. The only terminal events are an explicit leave and transport
// close.
type Hub struct {
	log     *slog.Logger
	reg     *room.Registry
	metrics *metrics.Metrics
}

func NewHub(logger *slog.Logger, reg *room.Registry, m *metrics.Metrics) *Hub {
	return &Hub{log: logger, reg: reg, metrics: m}
}

// Registry exposes the room table, mainly for tests and readiness.
func (h *Hub) Registry() *room.Registry { return h.reg }

// HandleConnect observes a freshly accepted transport connection. The
// session is not in any room until it sends join-room.
func (h *Hub) HandleConnect(s *room.Session) {
	h.metrics.SessionsActive.Inc()
	h.log.Debug("session connected", "session_id", s.ID())
}

// HandleDisconnect runs the leave sequence for a closing transport. It must
// run on abrupt closes too, so remaining members always learn about the
// departure. Safe to call for sessions that never joined or already left.
func (h *Hub) HandleDisconnect(s *room.Session) {
	h.leave(s)
	s.CloseOutbound()
	h.metrics.SessionsActive.Dec()
	h.log.Debug("session disconnected", "session_id", s.ID())
}

// HandleMessage routes one inbound frame. The returned bool asks the
// transport to close the connection (only after an explicit leave).
func (h *Hub) HandleMessage(s *room.Session, raw []byte) (closeConn bool) {
	msg, err := parseClientMessage(raw)
	if err != nil {
		h.drop(metrics.DropReasonMalformed, s, "err", err)
		return false
	}

	switch msg.Type {
	case messageTypeJoinRoom:
		h.routeJoin(s, msg)
	case messageTypeOffer, messageTypeAnswer:
		h.routeSignal(s, msg.Type, msg.TargetID, msg.SDP, nil)
	case messageTypeICECandidate:
		h.routeSignal(s, msg.Type, msg.TargetID, nil, msg.Candidate)
	case messageTypeChat:
		h.routeChat(s, msg.Chat.Text)
	case messageTypeLeave:
		h.leave(s)
		return true
	}
	return false
}

// routeJoin registers the session in the room and announces it to every
// pre-existing member. The joiner receives no notification about itself.
func (h *Hub) routeJoin(s *room.Session, msg clientMessage) {
	if err := h.reg.Join(msg.RoomID, msg.ParticipantID, s); err != nil {
		reason := metrics.DropReasonMalformed
		switch {
		case errors.Is(err, room.ErrAlreadyJoined):
			reason = metrics.DropReasonAlreadyJoined
		case errors.Is(err, room.ErrDuplicateParticipant):
			reason = metrics.DropReasonDuplicateParticipant
		case errors.Is(err, room.ErrRoomFull):
			reason = metrics.DropReasonRoomFull
		case errors.Is(err, room.ErrTooManyRooms):
			reason = metrics.DropReasonTooManyRooms
		}
		h.drop(reason, s, "room_id", msg.RoomID, "participant_id", msg.ParticipantID, "err", err)
		return
	}

	h.log.Info("participant joined",
		"session_id", s.ID(),
		"room_id", msg.RoomID,
		"participant_id", msg.ParticipantID,
	)

	payload, err := encodeUserConnected(msg.ParticipantID)
	if err != nil {
		h.log.Error("encode user-connected", "err", err)
		return
	}
	h.broadcast(s.RoomID(), s, payload, messageTypeUserConnected)
}

// routeSignal forwards an offer, answer or ICE candidate to exactly the
// target participant in the sender's room, tagged with the sender's
// identity. A missing target is an expected race with disconnects and the
// message is silently dropped.
func (h *Hub) routeSignal(s *room.Session, t messageType, targetID string, sdp *sdp, cand *candidate) {
	if !s.Joined() || s.Left() {
		h.drop(metrics.DropReasonNotInRoom, s, "type", string(t))
		return
	}

	payload, err := encodeSignalForward(t, s.ParticipantID(), sdp, cand)
	if err != nil {
		h.log.Error("encode signal forward", "type", string(t), "err", err)
		return
	}

	switch err := h.reg.SendToParticipant(s.RoomID(), targetID, payload); {
	case errors.Is(err, room.ErrUnknownTarget):
		h.drop(metrics.DropReasonUnknownTarget, s, "type", string(t), "target_id", targetID)
	case errors.Is(err, room.ErrBufferFull):
		h.drop(metrics.DropReasonSendBufferFull, s, "type", string(t), "target_id", targetID)
	case err == nil:
		h.metrics.Routed(string(t))
	}
}

// routeChat fans the text out to every other member, stamped with the
// sender's server-side identity. No echo back to the sender; clients render
// their own messages locally.
func (h *Hub) routeChat(s *room.Session, text string) {
	if !s.Joined() || s.Left() {
		h.drop(metrics.DropReasonNotInRoom, s, "type", string(messageTypeChat))
		return
	}

	payload, err := encodeChat(s.ParticipantID(), text)
	if err != nil {
		h.log.Error("encode chat", "err", err)
		return
	}
	h.broadcast(s.RoomID(), s, payload, messageTypeChat)
}

// leave removes the session from its room and tells the remaining members.
// No-op when the session never joined or already left.
func (h *Hub) leave(s *room.Session) {
	roomID, remaining := h.reg.Leave(s)
	if roomID == "" {
		return
	}

	h.log.Info("participant left",
		"session_id", s.ID(),
		"room_id", roomID,
		"participant_id", s.ParticipantID(),
	)

	if len(remaining) == 0 {
		return
	}
	payload, err := encodeUserDisconnected(s.ParticipantID())
	if err != nil {
		h.log.Error("encode user-disconnected", "err", err)
		return
	}
	h.broadcast(roomID, s, payload, messageTypeUserDisconnected)
}

func (h *Hub) broadcast(roomID string, except *room.Session, payload []byte, t messageType) {
	sent, dropped := h.reg.Broadcast(roomID, except, payload)
	if sent > 0 {
		h.metrics.Routed(string(t))
	}
	for i := 0; i < dropped; i++ {
		h.metrics.Dropped(metrics.DropReasonSendBufferFull)
	}
}

func (h *Hub) drop(reason string, s *room.Session, args ...any) {
	h.metrics.Dropped(reason)
	h.log.Debug("message dropped",
		append([]any{"reason", reason, "session_id", s.ID()}, args...)...)
}
