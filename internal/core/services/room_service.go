package services

import (
	"context"
	"fmt"
	"time"

	"vroom/internal/core/domain"
	"vroom/internal/core/ports"
	"vroom/pkg/utils"

	"go.uber.org/zap"
)

type roomService struct {
	registry ports.RoomRegistry
	logger   *zap.SugaredLogger
}

func NewRoomService(registry ports.RoomRegistry, logger *zap.SugaredLogger) ports.RoomService {
	return &roomService{
		registry: registry,
		logger:   logger,
	}
}

func (s *roomService) Join(ctx context.Context, roomID domain.RoomID, displayName string) (*domain.Participant, []*domain.Participant, error) {
	if roomID == "" {
		roomID = domain.RoomID(utils.NewRoomID())
	}
	if displayName == "" {
		displayName = "guest"
	}

	p := &domain.Participant{
		ID:        domain.ParticipantID(utils.NewParticipantID()),
		RoomID:    roomID,
		Name:      displayName,
		Transform: domain.IdentityTransform(),
		JoinedAt:  time.Now(),
	}

	snapshot, err := s.registry.Join(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	s.logger.Infow("participant joined",
		"participant_id", p.ID,
		"room_id", roomID,
		"name", displayName,
		"room_size", len(snapshot)+1,
	)

	return p, snapshot, nil
}

func (s *roomService) Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, error) {
	roomID, err := s.registry.Leave(ctx, id)
	if err != nil {
		return "", err
	}

	s.logger.Infow("participant left", "participant_id", id, "room_id", roomID)
	return roomID, nil
}

func (s *roomService) UpdateTransform(ctx context.Context, id domain.ParticipantID, t domain.Transform) error {
	return s.registry.UpdateTransform(ctx, id, t)
}

func (s *roomService) SetCapabilities(ctx context.Context, id domain.ParticipantID, caps domain.Capabilities) error {
	return s.registry.SetCapabilities(ctx, id, caps)
}

func (s *roomService) Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	return s.registry.Get(ctx, id)
}

func (s *roomService) Members(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	return s.registry.Members(ctx, roomID)
}

func (s *roomService) RoomCount(ctx context.Context) (int, error) {
	return s.registry.RoomCount(ctx)
}
