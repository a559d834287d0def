package services

import (
	"context"
	"testing"

	"vroom/internal/core/domain"
	"vroom/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRoomService() *roomService {
	return NewRoomService(memory.NewRoomRegistry(false), zap.NewNop().Sugar()).(*roomService)
}

func TestRoomService_JoinAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestRoomService()

	seen := make(map[domain.ParticipantID]bool)
	for i := 0; i < 10; i++ {
		p, _, err := svc.Join(ctx, "room-a", "alice")
		require.NoError(t, err)
		assert.False(t, seen[p.ID], "ids must never repeat")
		seen[p.ID] = true
	}
}

func TestRoomService_JoinDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestRoomService()

	p, snapshot, err := svc.Join(ctx, "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, p.RoomID, "empty room id gets a generated room")
	assert.Equal(t, "guest", p.Name)
	assert.Equal(t, domain.IdentityTransform(), p.Transform)
	assert.Empty(t, snapshot)
}

func TestRoomService_JoinSnapshotOrdering(t *testing.T) {
	ctx := context.Background()
	svc := newTestRoomService()

	first, _, err := svc.Join(ctx, "room-a", "alice")
	require.NoError(t, err)

	_, snapshot, err := svc.Join(ctx, "room-a", "bob")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, first.ID, snapshot[0].ID)
	assert.Equal(t, "alice", snapshot[0].Name)
}

func TestRoomService_LeaveReturnsRoom(t *testing.T) {
	ctx := context.Background()
	svc := newTestRoomService()

	p, _, err := svc.Join(ctx, "room-a", "alice")
	require.NoError(t, err)

	roomID, err := svc.Leave(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-a"), roomID)

	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}
