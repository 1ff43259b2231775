package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

type messageType string

const (
	// Inbound from clients.
	messageTypeJoinRoom     messageType = "join-room"
	messageTypeOffer        messageType = "offer"
	messageTypeAnswer       messageType = "answer"
	messageTypeICECandidate messageType = "ice-candidate"
	messageTypeChat         messageType = "chat-message"
	messageTypeLeave        messageType = "leave"

	// Outbound only.
	messageTypeUserConnected    messageType = "user-connected"
	messageTypeUserDisconnected messageType = "user-disconnected"
)

type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (s sdp) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("empty sdp")
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func (c candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

type chatPayload struct {
	ParticipantID string `json:"participantId"`
	Text          string `json:"text"`
}

// clientMessage is the inbound tagged union.
type clientMessage struct {
	Type messageType `json:"type"`

	RoomID        string `json:"roomId,omitempty"`        // join-room
	ParticipantID string `json:"participantId,omitempty"` // join-room
	TargetID      string `json:"targetId,omitempty"`      // offer/answer/ice-candidate

	SDP       *sdp         `json:"sdp,omitempty"`
	Candidate *candidate   `json:"candidate,omitempty"`
	Chat      *chatPayload `json:"chat,omitempty"`
}

// parseClientMessage decodes strictly: unknown fields, trailing data, and
// fields that don't belong to the message type are all rejected. Rejected
// messages are dropped by the caller, never fatal to the connection.
func parseClientMessage(data []byte) (clientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg clientMessage
	if err := dec.Decode(&msg); err != nil {
		return clientMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return clientMessage{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.validate(); err != nil {
		return clientMessage{}, err
	}
	return msg, nil
}

func (m clientMessage) validate() error {
	switch m.Type {
	case messageTypeJoinRoom:
		if m.RoomID == "" {
			return fmt.Errorf("join-room message missing roomId")
		}
		if m.ParticipantID == "" {
			return fmt.Errorf("join-room message missing participantId")
		}
		if m.TargetID != "" || m.SDP != nil || m.Candidate != nil || m.Chat != nil {
			return fmt.Errorf("join-room message has unexpected fields")
		}
	case messageTypeOffer, messageTypeAnswer:
		if m.TargetID == "" {
			return fmt.Errorf("%s message missing targetId", m.Type)
		}
		if m.SDP == nil {
			return fmt.Errorf("%s message missing sdp", m.Type)
		}
		if m.SDP.Type != string(m.Type) {
			return fmt.Errorf("%s message has sdp.type=%q", m.Type, m.SDP.Type)
		}
		if _, err := m.SDP.ToPion(); err != nil {
			return fmt.Errorf("%s message: %w", m.Type, err)
		}
		if m.RoomID != "" || m.ParticipantID != "" || m.Candidate != nil || m.Chat != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case messageTypeICECandidate:
		if m.TargetID == "" {
			return fmt.Errorf("ice-candidate message missing targetId")
		}
		if m.Candidate == nil {
			return fmt.Errorf("ice-candidate message missing candidate")
		}
		if init := m.Candidate.ToPion(); init.Candidate == "" {
			return fmt.Errorf("ice-candidate message has empty candidate")
		}
		if m.RoomID != "" || m.ParticipantID != "" || m.SDP != nil || m.Chat != nil {
			return fmt.Errorf("ice-candidate message has unexpected fields")
		}
	case messageTypeChat:
		if m.Chat == nil {
			return fmt.Errorf("chat message missing chat payload")
		}
		if m.Chat.Text == "" {
			return fmt.Errorf("chat message has empty text")
		}
		if m.RoomID != "" || m.ParticipantID != "" || m.TargetID != "" || m.SDP != nil || m.Candidate != nil {
			return fmt.Errorf("chat message has unexpected fields")
		}
	case messageTypeLeave:
		if m.RoomID != "" || m.ParticipantID != "" || m.TargetID != "" || m.SDP != nil || m.Candidate != nil || m.Chat != nil {
			return fmt.Errorf("leave message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// serverMessage is the outbound tagged union. SenderID tags forwarded
// signals with the originating participant; ParticipantID carries the
// subject of presence events.
type serverMessage struct {
	Type messageType `json:"type"`

	ParticipantID string `json:"participantId,omitempty"`
	SenderID      string `json:"senderId,omitempty"`

	SDP       *sdp         `json:"sdp,omitempty"`
	Candidate *candidate   `json:"candidate,omitempty"`
	Chat      *chatPayload `json:"chat,omitempty"`
}

func encodeUserConnected(participantID string) ([]byte, error) {
	return json.Marshal(serverMessage{Type: messageTypeUserConnected, ParticipantID: participantID})
}

func encodeUserDisconnected(participantID string) ([]byte, error) {
	return json.Marshal(serverMessage{Type: messageTypeUserDisconnected, ParticipantID: participantID})
}

func encodeSignalForward(t messageType, senderID string, sdp *sdp, cand *candidate) ([]byte, error) {
	return json.Marshal(serverMessage{Type: t, SenderID: senderID, SDP: sdp, Candidate: cand})
}

func encodeChat(senderID, text string) ([]byte, error) {
	return json.Marshal(serverMessage{
		Type: messageTypeChat,
		Chat: &chatPayload{ParticipantID: senderID, Text: text},
	})
}
