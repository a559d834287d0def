package ports

import (
	"context"

	"vroom/internal/core/domain"
)

// RoomRegistry owns room membership state. Implementations must serialize
// operations on the same room: a snapshot returned by Join reflects the room
// strictly before the joining participant became visible.
type RoomRegistry interface {
	// Join inserts the participant into its room (creating the room on first
	// use) and returns a snapshot of the members present before insertion.
	Join(ctx context.Context, p *domain.Participant) ([]*domain.Participant, error)

	// Leave evicts the participant and returns the room it was in. Empty
	// rooms are destroyed unless the registry retains them.
	Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, error)

	Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error)

	// UpdateTransform stores the participant's last known transform.
	// Returns domain.ErrParticipantNotFound for unknown ids.
	UpdateTransform(ctx context.Context, id domain.ParticipantID, t domain.Transform) error

	// SetCapabilities records which outbound media the participant has on.
	SetCapabilities(ctx context.Context, id domain.ParticipantID, caps domain.Capabilities) error

	// RoomCount reports the number of live rooms, for health and metrics.
	RoomCount(ctx context.Context) (int, error)
}
