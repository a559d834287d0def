package memory

import (
	"context"
	"sync"

	"vroom/internal/core/domain"
	"vroom/internal/core/ports"
)

// RoomRegistry keeps all room state in process memory. One mutex guards the
// whole structure so that join/leave/update sequences on a room never
// interleave partially; per-room contention is negligible at signaling rates.
type RoomRegistry struct {
	rooms       map[domain.RoomID]*domain.Room
	byID        map[domain.ParticipantID]*domain.Participant
	retainEmpty bool
	mu          sync.Mutex
}

func NewRoomRegistry(retainEmpty bool) ports.RoomRegistry {
	return &RoomRegistry{
		rooms:       make(map[domain.RoomID]*domain.Room),
		byID:        make(map[domain.ParticipantID]*domain.Participant),
		retainEmpty: retainEmpty,
	}
}

func (r *RoomRegistry) Join(ctx context.Context, p *domain.Participant) ([]*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; exists {
		return nil, domain.ErrParticipantExists
	}

	room, ok := r.rooms[p.RoomID]
	if !ok {
		room = domain.NewRoom(p.RoomID)
		r.rooms[p.RoomID] = room
	}

	// Snapshot before insertion: the joiner must not appear in its own
	// initial state, and nobody can observe the join before this returns.
	snapshot := room.Snapshot()

	room.Participants[p.ID] = p
	r.byID[p.ID] = p

	return snapshot, nil
}

func (r *RoomRegistry) Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return "", domain.ErrParticipantNotFound
	}

	delete(r.byID, id)
	if room, ok := r.rooms[p.RoomID]; ok {
		delete(room.Participants, id)
		if len(room.Participants) == 0 && !r.retainEmpty {
			delete(r.rooms, p.RoomID)
		}
	}

	return p.RoomID, nil
}

func (r *RoomRegistry) Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

func (r *RoomRegistry) Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

func (r *RoomRegistry) UpdateTransform(ctx context.Context, id domain.ParticipantID, t domain.Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Transform = t
	return nil
}

func (r *RoomRegistry) SetCapabilities(ctx context.Context, id domain.ParticipantID, caps domain.Capabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Capabilities = caps
	return nil
}

func (r *RoomRegistry) RoomCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), nil
}
