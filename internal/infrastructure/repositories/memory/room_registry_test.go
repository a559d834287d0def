package memory

import (
	"context"
	"testing"

	"vroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParticipant(id, room string) *domain.Participant {
	return &domain.Participant{
		ID:        domain.ParticipantID(id),
		RoomID:    domain.RoomID(room),
		Name:      id,
		Transform: domain.IdentityTransform(),
	}
}

func TestRoomRegistry_JoinSnapshotExcludesJoiner(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	snapshot, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)
	assert.Empty(t, snapshot, "first joiner sees an empty room")

	snapshot, err = reg.Join(ctx, newParticipant("p-2", "room-a"))
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.ParticipantID("p-1"), snapshot[0].ID)
}

func TestRoomRegistry_DuplicateJoinRejected(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)

	_, err = reg.Join(ctx, newParticipant("p-1", "room-a"))
	assert.ErrorIs(t, err, domain.ErrParticipantExists)
}

func TestRoomRegistry_LeaveDestroysEmptyRoom(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)

	roomID, err := reg.Leave(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-a"), roomID)

	_, err = reg.Members(ctx, "room-a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	n, err := reg.RoomCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRoomRegistry_RetainEmptyKeepsRoom(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(true)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)

	_, err = reg.Leave(ctx, "p-1")
	require.NoError(t, err)

	members, err := reg.Members(ctx, "room-a")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRoomRegistry_LeaveUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Leave(ctx, "p-ghost")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestRoomRegistry_UpdateTransform(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)

	moved := domain.Transform{
		Position: domain.Vector3{1, 2, 3},
		Rotation: domain.IdentityTransform().Rotation,
	}
	require.NoError(t, reg.UpdateTransform(ctx, "p-1", moved))

	p, err := reg.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, moved.Position, p.Transform.Position)

	err = reg.UpdateTransform(ctx, "p-ghost", moved)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestRoomRegistry_SetCapabilities(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)

	caps := domain.Capabilities{Audio: true, ScreenShare: true}
	require.NoError(t, reg.SetCapabilities(ctx, "p-1", caps))

	p, err := reg.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, caps, p.Capabilities)
}

func TestRoomRegistry_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)
	_, err = reg.Join(ctx, newParticipant("p-2", "room-a"))
	require.NoError(t, err)

	members, err := reg.Members(ctx, "room-a")
	require.NoError(t, err)
	members[0].Name = "mutated"

	fresh, err := reg.Get(ctx, members[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", fresh.Name, "registry state must not be reachable through snapshots")
}

func TestRoomRegistry_RoomsAreIsolated(t *testing.T) {
	ctx := context.Background()
	reg := NewRoomRegistry(false)

	_, err := reg.Join(ctx, newParticipant("p-1", "room-a"))
	require.NoError(t, err)
	_, err = reg.Join(ctx, newParticipant("p-2", "room-b"))
	require.NoError(t, err)

	members, err := reg.Members(ctx, "room-a")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, domain.ParticipantID("p-1"), members[0].ID)

	n, err := reg.RoomCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
