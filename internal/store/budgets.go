package store

import (
	"context"
	"errors"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListActiveBudgets returns every active budget for the tenant, used by
// the budget engine to build its per-request evaluation set.
func (s *Store) ListActiveBudgets(ctx context.Context, tenantID uuid.UUID) ([]models.Budget, error) {
	var budgets []models.Budget
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Find(&budgets).Error
	return budgets, err
}

func (s *Store) GetBudget(ctx context.Context, id uuid.UUID) (*models.Budget, error) {
	var b models.Budget
	err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &b, err
}

func (s *Store) CreateBudget(ctx context.Context, b *models.Budget) error {
	return s.db.WithContext(ctx).Create(b).Error
}

func (s *Store) UpdateBudget(ctx context.Context, b *models.Budget) error {
	return s.db.WithContext(ctx).Save(b).Error
}

// SettleSpend atomically adds deltaMicros to a budget's spend and returns
// the resulting total, using a row-level lock so concurrent settlements on
// the same budget serialize instead of lost-update racing.
func (s *Store) SettleSpend(ctx context.Context, budgetID uuid.UUID, deltaMicros models.Micros) (models.Micros, error) {
	var result models.Micros
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Budget
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&b, "id = ?", budgetID).Error; err != nil {
			return err
		}
		b.SpendMicros += deltaMicros
		if err := tx.Model(&b).Update("spend_micros", b.SpendMicros).Error; err != nil {
			return err
		}
		result = b.SpendMicros
		return nil
	})
	return result, err
}

// ResetBudget zeroes a budget's spend and advances its reset instant,
// called by budget.Engine.Settle once ResetAt has passed.
func (s *Store) ResetBudget(ctx context.Context, budgetID uuid.UUID, nextReset time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Budget{}).
		Where("id = ?", budgetID).
		Updates(map[string]interface{}{
			"spend_micros": 0,
			"reset_at":     nextReset,
		}).Error
}
