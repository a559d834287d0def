// Package wire defines the JSON envelopes exchanged between clients and the
// signaling relay. Both the relay and the client stack share these types so
// the protocol cannot drift between the two ends.
package wire

import (
	"encoding/json"
	"fmt"

	"vroom/internal/core/domain"
)

type Type string

const (
	// Client → relay.
	TypeJoin               Type = "join"
	TypeTransformUpdate    Type = "transform_update"
	TypeOffer              Type = "offer"
	TypeAnswer             Type = "answer"
	TypeICECandidate       Type = "ice_candidate"
	TypeScreenShareRequest Type = "screen_share_request"
	TypeScreenShareRelease Type = "screen_share_release"
	TypeChatMessage        Type = "chat_message"

	// Relay → client.
	TypeInitialState        Type = "initial_state"
	TypePeerJoined          Type = "peer_joined"
	TypePeerLeft            Type = "peer_left"
	TypeScreenShareGrant    Type = "screen_share_grant"
	TypeScreenShareReleased Type = "screen_share_released"
	TypeError               Type = "error"
)

// Envelope is the outer frame of every signaling message. Targeted messages
// carry To; negotiation messages additionally carry the link namespace so
// primary and screen-share lanes can never be confused.
type Envelope struct {
	Type      Type                 `json:"type"`
	From      domain.ParticipantID `json:"from,omitempty"`
	To        domain.ParticipantID `json:"to,omitempty"`
	Namespace domain.Namespace     `json:"namespace,omitempty"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEnvelope marshals payload and wraps it in an envelope of the given type.
func NewEnvelope(t Type, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: data}, nil
}

// IsNegotiation reports whether t is one of the targeted negotiation types
// that require a namespace tag.
func (t Type) IsNegotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

type Join struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type Member struct {
	ID           domain.ParticipantID `json:"id"`
	Name         string               `json:"name"`
	Transform    domain.Transform     `json:"transform"`
	Capabilities domain.Capabilities  `json:"capabilities"`
}

type InitialState struct {
	SelfID       domain.ParticipantID `json:"self_id"`
	Room         string               `json:"room"`
	Participants []Member             `json:"participants"`
}

type PeerJoined struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}

type PeerLeft struct {
	ID domain.ParticipantID `json:"id"`
}

// TransformUpdate is unaddressed client → relay; the relay attaches the
// sender id before fanning it out.
type TransformUpdate struct {
	ID       domain.ParticipantID `json:"id,omitempty"`
	Position domain.Vector3       `json:"position"`
	Rotation domain.Quaternion    `json:"rotation"`
}

type SDP struct {
	SDP string `json:"sdp"`
}

// ICECandidate carries a JSON-encoded candidate init blob; the signaling
// layer never inspects it.
type ICECandidate struct {
	Candidate string `json:"candidate"`
}

type ScreenShareGrant struct {
	Granted bool `json:"granted"`
}

type ScreenShareReleased struct {
	ID domain.ParticipantID `json:"id"`
}

type Chat struct {
	Text string `json:"text"`
}

type ChatBroadcast struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
	Text string               `json:"text"`
}

type Error struct {
	Message string `json:"message"`
}
