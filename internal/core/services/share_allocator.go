package services

import (
	"context"
	"sync"

	"vroom/internal/core/domain"
	"vroom/internal/core/ports"

	"go.uber.org/zap"
)

// shareAllocator counts concurrent screen-share holders per room. Admission
// is checked before the requester captures a display stream, so a denial must
// never mutate state.
type shareAllocator struct {
	cap     int
	holders map[domain.RoomID]map[domain.ParticipantID]struct{}
	mu      sync.Mutex
	logger  *zap.SugaredLogger
}

func NewShareAllocator(cap int, logger *zap.SugaredLogger) ports.ShareAllocator {
	return &shareAllocator{
		cap:     cap,
		holders: make(map[domain.RoomID]map[domain.ParticipantID]struct{}),
		logger:  logger,
	}
}

func (a *shareAllocator) Request(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	room := a.holders[roomID]
	if _, held := room[id]; held {
		// Already holding: a repeated request is granted without consuming
		// another slot.
		return true, nil
	}
	if len(room) >= a.cap {
		a.logger.Infow("screen share denied, quota reached",
			"room_id", roomID,
			"participant_id", id,
			"holders", len(room),
		)
		return false, nil
	}

	if room == nil {
		room = make(map[domain.ParticipantID]struct{})
		a.holders[roomID] = room
	}
	room[id] = struct{}{}

	a.logger.Infow("screen share granted",
		"room_id", roomID,
		"participant_id", id,
		"holders", len(room),
	)
	return true, nil
}

func (a *shareAllocator) Release(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	room := a.holders[roomID]
	if _, held := room[id]; !held {
		return false, nil
	}

	delete(room, id)
	if len(room) == 0 {
		delete(a.holders, roomID)
	}

	a.logger.Infow("screen share released", "room_id", roomID, "participant_id", id)
	return true, nil
}

func (a *shareAllocator) Holders(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	room := a.holders[roomID]
	out := make([]domain.ParticipantID, 0, len(room))
	for id := range room {
		out = append(out, id)
	}
	return out, nil
}
