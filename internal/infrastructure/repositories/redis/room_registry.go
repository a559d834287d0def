package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"vroom/internal/core/domain"
	"vroom/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RoomRegistry stores room membership in Redis so several relay nodes can see
// the same directory. Within a single relay the signal server serializes all
// compound room operations; this registry only guarantees per-key atomicity.
type RoomRegistry struct {
	client *redis.Client
	prefix string
}

func NewRoomRegistry(client *redis.Client) ports.RoomRegistry {
	return &RoomRegistry{
		client: client,
		prefix: "vroom:",
	}
}

func (r *RoomRegistry) participantKey(id domain.ParticipantID) string {
	return r.prefix + "participant:" + string(id)
}

func (r *RoomRegistry) roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:members", r.prefix, roomID)
}

func (r *RoomRegistry) roomsKey() string {
	return r.prefix + "rooms"
}

func (r *RoomRegistry) Join(ctx context.Context, p *domain.Participant) ([]*domain.Participant, error) {
	exists, err := r.client.Exists(ctx, r.participantKey(p.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check participant in Redis: %w", err)
	}
	if exists > 0 {
		return nil, domain.ErrParticipantExists
	}

	// Snapshot before making the joiner visible.
	snapshot, err := r.members(ctx, p.RoomID)
	if err != nil && err != domain.ErrRoomNotFound {
		return nil, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal participant: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.participantKey(p.ID), data, 0)
	pipe.SAdd(ctx, r.roomKey(p.RoomID), string(p.ID))
	pipe.SAdd(ctx, r.roomsKey(), string(p.RoomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to add participant to Redis: %w", err)
	}

	return snapshot, nil
}

func (r *RoomRegistry) Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, error) {
	p, err := r.get(ctx, id)
	if err != nil {
		return "", err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.participantKey(id))
	pipe.SRem(ctx, r.roomKey(p.RoomID), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to remove participant from Redis: %w", err)
	}

	remaining, err := r.client.SCard(ctx, r.roomKey(p.RoomID)).Result()
	if err == nil && remaining == 0 {
		r.client.SRem(ctx, r.roomsKey(), string(p.RoomID))
	}

	return p.RoomID, nil
}

func (r *RoomRegistry) Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	return r.get(ctx, id)
}

func (r *RoomRegistry) get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	data, err := r.client.Get(ctx, r.participantKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant from Redis: %w", err)
	}

	var p domain.Participant
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &p, nil
}

func (r *RoomRegistry) Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	return r.members(ctx, roomID)
}

func (r *RoomRegistry) members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	ids, err := r.client.SMembers(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room members from Redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	members := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := r.get(ctx, domain.ParticipantID(id))
		if err == domain.ErrParticipantNotFound {
			// Member set can lag participant deletion; skip stale entries.
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, p)
	}
	return members, nil
}

func (r *RoomRegistry) UpdateTransform(ctx context.Context, id domain.ParticipantID, t domain.Transform) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	p.Transform = t
	return r.put(ctx, p)
}

func (r *RoomRegistry) SetCapabilities(ctx context.Context, id domain.ParticipantID, caps domain.Capabilities) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	p.Capabilities = caps
	return r.put(ctx, p)
}

func (r *RoomRegistry) put(ctx context.Context, p *domain.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}
	if err := r.client.Set(ctx, r.participantKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set participant in Redis: %w", err)
	}
	return nil
}

func (r *RoomRegistry) RoomCount(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.roomsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms in Redis: %w", err)
	}
	return int(n), nil
}
