package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RoutingCondition is the JSON-typed condition object a RoutingRule
// evaluates against an incoming request. Any zero-valued field is not
// checked.
type RoutingCondition struct {
	SourceModelRegex string   `json:"source_model_regex,omitempty"`
	MinMessages      int      `json:"min_messages,omitempty"`
	ContentKeywords  []string `json:"content_keywords,omitempty"`
	TokenEstimateMax int      `json:"token_estimate_max,omitempty"`
	// TimeOfDayRange is "HH:MM-HH:MM" in UTC.
	TimeOfDayRange string `json:"time_of_day_range,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

// RoutingRule rewrites the target provider/model for matching requests.
// Rules are evaluated in (priority asc, created_at asc) order; the first
// active match wins.
type RoutingRule struct {
	BaseModel
	TenantID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name        string           `gorm:"not null" json:"name"`
	Description string           `json:"description,omitempty"`
	Priority    int              `gorm:"not null;default:100" json:"priority"`
	Condition   datatypes.JSONType[RoutingCondition] `gorm:"not null" json:"condition"`

	TargetProvider string `gorm:"not null" json:"target_provider"`
	TargetModel    string `gorm:"not null" json:"target_model"`

	FallbackProvider string `json:"fallback_provider,omitempty"`
	FallbackModel    string `json:"fallback_model,omitempty"`

	Active bool `gorm:"not null;default:true" json:"active"`

	TimesApplied         int64   `gorm:"not null;default:0" json:"times_applied"`
	EstimatedSavingsUSD  float64 `gorm:"not null;default:0" json:"estimated_savings_usd"`

	CreatedAtOrder time.Time `gorm:"column:created_at_order" json:"-"`
}

func (RoutingRule) TableName() string { return "routing_rules" }

// RouteDecision is the metadata the Smart Router attaches to a request.
type RouteDecision struct {
	OriginalModel  string `json:"original_model"`
	Routed         bool   `json:"routed"`
	RuleID         string `json:"rule_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	TargetProvider string `json:"target_provider,omitempty"`
	TargetModel    string `json:"target_model,omitempty"`
}
