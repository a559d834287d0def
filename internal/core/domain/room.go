package domain

import "time"

// Room scopes presence and negotiation to a subset of connected clients.
// Participant ordering is irrelevant; membership is a set keyed by id.
type Room struct {
	ID           RoomID
	Participants map[ParticipantID]*Participant
	CreatedAt    time.Time
}

func NewRoom(id RoomID) *Room {
	return &Room{
		ID:           id,
		Participants: make(map[ParticipantID]*Participant),
		CreatedAt:    time.Now(),
	}
}

// Snapshot returns copies of the current participants. Callers receive the
// room state as of the call; later mutations are not reflected.
func (r *Room) Snapshot() []*Participant {
	out := make([]*Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p.Clone())
	}
	return out
}
