package models

import (
	"time"

	"github.com/google/uuid"
)

type BudgetScope string

const (
	BudgetScopeGlobal      BudgetScope = "global"
	BudgetScopePerAgent    BudgetScope = "per_agent"
	BudgetScopePerModel    BudgetScope = "per_model"
	BudgetScopePerWorkflow BudgetScope = "per_workflow"
)

type BudgetPeriod string

const (
	BudgetPeriodDaily   BudgetPeriod = "daily"
	BudgetPeriodWeekly  BudgetPeriod = "weekly"
	BudgetPeriodMonthly BudgetPeriod = "monthly"
)

// BudgetBreachAction is what happens once a budget's critical threshold is
// crossed.
type BudgetBreachAction string

const (
	BudgetActionAlert     BudgetBreachAction = "alert"
	BudgetActionBlock     BudgetBreachAction = "block"
	BudgetActionDowngrade BudgetBreachAction = "downgrade"
)

// Budget is a monetary limit scoped to a tenant, optionally narrowed to one
// agent, model, or workflow. SpendMicros is mutated exclusively by the
// settlement path (internal/core/budget).
type Budget struct {
	BaseModel
	TenantID uuid.UUID   `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name     string      `gorm:"not null" json:"name"`
	Scope    BudgetScope `gorm:"not null" json:"scope"`
	// ScopeKey is the agent id, model name, or workflow name the scope
	// narrows to; empty for BudgetScopeGlobal.
	ScopeKey string       `json:"scope_key,omitempty"`
	Period   BudgetPeriod `gorm:"not null" json:"period"`

	LimitMicros Micros `gorm:"not null" json:"limit_micros"`
	SpendMicros Micros `gorm:"not null;default:0" json:"spend_micros"`

	ResetAt time.Time `gorm:"not null" json:"reset_at"`

	ActionOnBreach   BudgetBreachAction `gorm:"not null;default:alert" json:"action_on_breach"`
	DowngradeModel   string             `json:"downgrade_model,omitempty"`
	WarnPercent      float64            `gorm:"not null;default:80" json:"warn_percent"`
	CriticalPercent  float64            `gorm:"not null;default:100" json:"critical_percent"`
	Active           bool               `gorm:"not null;default:true" json:"active"`
}

func (Budget) TableName() string { return "budgets" }

// Matches reports whether this budget applies to a request at the given
// scope narrowing values. A global budget always matches.
func (b *Budget) Matches(agentID, model, workflow string) bool {
	if !b.Active {
		return false
	}
	switch b.Scope {
	case BudgetScopeGlobal:
		return true
	case BudgetScopePerAgent:
		return b.ScopeKey == agentID
	case BudgetScopePerModel:
		return b.ScopeKey == model
	case BudgetScopePerWorkflow:
		return b.ScopeKey == workflow
	default:
		return false
	}
}

// NextReset computes the reset instant one period after from.
func (b *Budget) NextReset(from time.Time) time.Time {
	switch b.Period {
	case BudgetPeriodDaily:
		return from.AddDate(0, 0, 1)
	case BudgetPeriodWeekly:
		return from.AddDate(0, 0, 7)
	case BudgetPeriodMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
