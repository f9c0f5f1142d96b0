package store

import (
	"context"
	"errors"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("store: not found")

func (s *Store) GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).Where("fingerprint = ? AND active = ?", fingerprint, true).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateCredential(ctx context.Context, cred *models.Credential) error {
	return s.db.WithContext(ctx).Create(cred).Error
}
