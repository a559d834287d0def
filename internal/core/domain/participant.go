package domain

import "time"

type ParticipantID string

type RoomID string

// Namespace identifies an independent negotiation lane between two
// participants. A pair holds at most one live link per namespace.
type Namespace string

const (
	NamespacePrimary     Namespace = "primary"
	NamespaceScreenShare Namespace = "screen-share"
)

// Valid reports whether ns is one of the known negotiation lanes.
func (ns Namespace) Valid() bool {
	return ns == NamespacePrimary || ns == NamespaceScreenShare
}

// Capabilities records which outbound media a participant currently has on.
type Capabilities struct {
	Audio       bool `json:"audio"`
	Video       bool `json:"video"`
	ScreenShare bool `json:"screen_share"`
}

// Participant is one live connection in a room. The id is unique for the
// lifetime of the connection and never reused.
type Participant struct {
	ID           ParticipantID `json:"id"`
	RoomID       RoomID        `json:"room_id"`
	Name         string        `json:"name"`
	Transform    Transform     `json:"transform"`
	Capabilities Capabilities  `json:"capabilities"`
	JoinedAt     time.Time     `json:"joined_at"`
}

// Clone returns a copy safe to hand out across goroutines.
func (p *Participant) Clone() *Participant {
	cp := *p
	return &cp
}
