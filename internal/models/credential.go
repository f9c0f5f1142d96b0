package models

import "github.com/google/uuid"

// Credential maps a fingerprinted secret to a tenant and plan. The secret
// itself is never stored; only Fingerprint = SHA256(secret || salt) is.
type Credential struct {
	BaseModel
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Fingerprint string    `gorm:"uniqueIndex;not null" json:"fingerprint"`
	Plan        PlanTier  `gorm:"not null" json:"plan"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
}

func (Credential) TableName() string { return "credentials" }
