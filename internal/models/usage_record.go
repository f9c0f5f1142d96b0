package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one settled request: the durable audit trail written by
// the usage logger after the pipeline completes. It is append-only.
type UsageRecord struct {
	BaseModel
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AgentID   string    `gorm:"index" json:"agent_id,omitempty"`
	RequestID string    `gorm:"uniqueIndex;not null" json:"request_id"`

	Provider       string `gorm:"not null" json:"provider"`
	RequestedModel string `gorm:"not null" json:"requested_model"`
	ServedModel    string `gorm:"not null" json:"served_model"`
	Routed         bool   `gorm:"not null;default:false" json:"routed"`
	RoutingRuleID  string `json:"routing_rule_id,omitempty"`

	PromptTokens     int64 `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64 `gorm:"not null;default:0" json:"completion_tokens"`
	CacheReadTokens  int64 `gorm:"not null;default:0" json:"cache_read_tokens"`
	CacheWriteTokens int64 `gorm:"not null;default:0" json:"cache_write_tokens"`

	CostMicros    Micros `gorm:"not null;default:0" json:"cost_micros"`
	PricingSource string `gorm:"not null;default:known" json:"pricing_source"`
	UsageEstimated bool  `gorm:"not null;default:false" json:"usage_estimated"`

	Streamed   bool   `gorm:"not null;default:false" json:"streamed"`
	StatusCode int    `gorm:"not null" json:"status_code"`
	Outcome    string `gorm:"not null" json:"outcome"`

	LatencyMS int64 `gorm:"not null" json:"latency_ms"`

	SecurityAction string `json:"security_action,omitempty"`

	// UsageAuditMismatch is set when a provider's typed SDK response
	// disagreed with the gjson hot-path extraction that priced this
	// request. Currently only checked for OpenAI.
	UsageAuditMismatch bool `gorm:"not null;default:false" json:"usage_audit_mismatch"`

	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
}

func (UsageRecord) TableName() string { return "usage_records" }
