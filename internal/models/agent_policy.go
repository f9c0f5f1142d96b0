package models

import "github.com/google/uuid"

// AgentPolicy pins a per-agent override of the tenant's default security
// posture. Absence of a row means the tenant default applies.
type AgentPolicy struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AgentID  string    `gorm:"not null;index" json:"agent_id"`

	DetectionLevel DetectionLevel `gorm:"not null;default:enforce" json:"detection_level"`

	DisabledDetectors []string `gorm:"serializer:json" json:"disabled_detectors,omitempty"`

	AutoKillEnabled   bool    `gorm:"not null;default:true" json:"auto_kill_enabled"`
	AutoKillThreshold float64 `gorm:"not null;default:0.95" json:"auto_kill_threshold"`
}

func (AgentPolicy) TableName() string { return "agent_policies" }
