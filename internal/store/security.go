package store

import (
	"context"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
)

func (s *Store) CreateSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *Store) GetAgentPolicy(ctx context.Context, tenantID uuid.UUID, agentID string) (*models.AgentPolicy, error) {
	var p models.AgentPolicy
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetDetectorBaseline(ctx context.Context, tenantID uuid.UUID, agentID, metric string) (*models.DetectorBaseline, error) {
	var b models.DetectorBaseline
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ? AND metric = ?", tenantID, agentID, metric).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) UpsertDetectorBaseline(ctx context.Context, b *models.DetectorBaseline) error {
	return s.db.WithContext(ctx).Save(b).Error
}
