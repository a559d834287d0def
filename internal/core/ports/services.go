package ports

import (
	"context"

	"vroom/internal/core/domain"
)

// RoomService is the server-side admission and presence surface consumed by
// the signaling relay.
type RoomService interface {
	// Join admits a new connection into roomID under displayName. It returns
	// the created participant (with its freshly assigned id) and the snapshot
	// of members visible before the join.
	Join(ctx context.Context, roomID domain.RoomID, displayName string) (*domain.Participant, []*domain.Participant, error)

	// Leave evicts the participant and returns the room it occupied.
	Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, error)

	// UpdateTransform validates and stores an inbound transform sample.
	UpdateTransform(ctx context.Context, id domain.ParticipantID, t domain.Transform) error

	// SetCapabilities records which outbound media the participant has on.
	SetCapabilities(ctx context.Context, id domain.ParticipantID, caps domain.Capabilities) error

	Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error)
	Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	RoomCount(ctx context.Context) (int, error)
}

// ShareAllocator bounds concurrent screen-share holders per room.
type ShareAllocator interface {
	// Request grants a slot when the room's holder count is below the cap.
	// A denial mutates nothing.
	Request(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) (bool, error)

	// Release frees the participant's slot if it holds one. Releasing a slot
	// that was never granted (or releasing twice) is a no-op; the returned
	// bool reports whether a slot was actually freed.
	Release(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) (bool, error)

	// Holders lists the room's current slot holders.
	Holders(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantID, error)
}
