package store

import (
	"context"

	"github.com/amerfu/pllm-gateway/internal/models"
)

func (s *Store) CreateUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// CreateUsageRecordBatch inserts multiple records in one round trip; used
// by the usage logger's drain loop when flushing its bounded queue.
func (s *Store) CreateUsageRecordBatch(ctx context.Context, recs []models.UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(recs, 100).Error
}
