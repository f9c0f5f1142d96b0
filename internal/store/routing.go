package store

import (
	"context"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListActiveRoutingRules returns a tenant's active rules ordered by
// priority ascending then creation order, which is first-match-wins
// evaluation order for the Smart Router.
func (s *Store) ListActiveRoutingRules(ctx context.Context, tenantID uuid.UUID) ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("priority ASC, created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (s *Store) CreateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) UpdateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *Store) DeleteRoutingRule(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.RoutingRule{}, "id = ?", id).Error
}

// RecordRuleApplied increments a rule's statistics after it routes a
// request, using an atomic SQL increment to avoid read-modify-write races
// under concurrent traffic.
func (s *Store) RecordRuleApplied(ctx context.Context, ruleID uuid.UUID, estimatedSavingsUSD float64) error {
	return s.db.WithContext(ctx).Model(&models.RoutingRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"times_applied":         gorm.Expr("times_applied + 1"),
			"estimated_savings_usd": gorm.Expr("estimated_savings_usd + ?", estimatedSavingsUSD),
		}).Error
}
