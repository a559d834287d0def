package services

import (
	"context"
	"fmt"
	"testing"

	"vroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAllocator(cap int) *shareAllocator {
	return NewShareAllocator(cap, zap.NewNop().Sugar()).(*shareAllocator)
}

func TestShareAllocator_GrantsUpToCap(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(4)
	room := domain.RoomID("room-a")

	for i := 0; i < 4; i++ {
		granted, err := alloc.Request(ctx, room, domain.ParticipantID(fmt.Sprintf("p-%d", i)))
		require.NoError(t, err)
		assert.True(t, granted, "request %d should be granted", i)
	}

	granted, err := alloc.Request(ctx, room, "p-overflow")
	require.NoError(t, err)
	assert.False(t, granted, "fifth request must be denied")
}

func TestShareAllocator_DenialMutatesNothing(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(1)
	room := domain.RoomID("room-a")

	granted, err := alloc.Request(ctx, room, "p-holder")
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = alloc.Request(ctx, room, "p-denied")
	require.NoError(t, err)
	require.False(t, granted)

	// The denied participant never became a holder, so releasing frees
	// nothing.
	released, err := alloc.Release(ctx, room, "p-denied")
	require.NoError(t, err)
	assert.False(t, released)

	holders, err := alloc.Holders(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"p-holder"}, holders)
}

func TestShareAllocator_RepeatedRequestByHolder(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(1)
	room := domain.RoomID("room-a")

	granted, err := alloc.Request(ctx, room, "p-1")
	require.NoError(t, err)
	require.True(t, granted)

	// Asking again while holding succeeds without consuming another slot.
	granted, err = alloc.Request(ctx, room, "p-1")
	require.NoError(t, err)
	assert.True(t, granted)

	holders, err := alloc.Holders(ctx, room)
	require.NoError(t, err)
	assert.Len(t, holders, 1)
}

func TestShareAllocator_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(2)
	room := domain.RoomID("room-a")

	_, err := alloc.Request(ctx, room, "p-1")
	require.NoError(t, err)

	released, err := alloc.Release(ctx, room, "p-1")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = alloc.Release(ctx, room, "p-1")
	require.NoError(t, err)
	assert.False(t, released, "second release must be a no-op")
}

func TestShareAllocator_ReleaseFreesSlotForOthers(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(1)
	room := domain.RoomID("room-a")

	granted, _ := alloc.Request(ctx, room, "p-1")
	require.True(t, granted)

	granted, _ = alloc.Request(ctx, room, "p-2")
	require.False(t, granted)

	released, err := alloc.Release(ctx, room, "p-1")
	require.NoError(t, err)
	require.True(t, released)

	granted, err = alloc.Request(ctx, room, "p-2")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestShareAllocator_RoomsAreIndependent(t *testing.T) {
	ctx := context.Background()
	alloc := newTestAllocator(1)

	granted, _ := alloc.Request(ctx, "room-a", "p-1")
	require.True(t, granted)

	granted, err := alloc.Request(ctx, "room-b", "p-2")
	require.NoError(t, err)
	assert.True(t, granted, "quota is per room, not global")
}
