// Package budget is the Budget Engine: it evaluates every budget that
// applies to a request against a cached snapshot, then — once the
// actual cost is known — settles the real spend against the
// authoritative store. Evaluation is deliberately fail-open; settlement
// is retried and never silently dropped.
package budget

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amerfu/pllm-gateway/internal/cache"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is what evaluate() decided for a request.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionDowngrade Action = "allow_with_downgrade"
	ActionBlock    Action = "block"
)

// Decision is the outcome of evaluating every budget that matches a
// request.
type Decision struct {
	Action         Action
	BudgetName     string
	DowngradeModel string
	// Degraded is true when evaluation fell back to allow because the
	// store was unreachable (business decision: never black-hole paying
	// customers on infra faults).
	Degraded bool
}

// Store is the authoritative persistence this engine settles against.
type Store interface {
	ListActiveBudgets(ctx context.Context, tenantID uuid.UUID) ([]models.Budget, error)
	SettleSpend(ctx context.Context, budgetID uuid.UUID, deltaMicros models.Micros) (models.Micros, error)
	ResetBudget(ctx context.Context, budgetID uuid.UUID, nextReset time.Time) error
}

// PricingLookup resolves the estimated cost of a model at a given token
// volume, used to pick the cheapest downgrade target when more than one
// budget asks for a downgrade.
type PricingLookup interface {
	EstimatedCostPerMillionInput(model string) float64
}

type Engine struct {
	store     Store
	snapshots *cache.Snapshots
	pricing   PricingLookup
	snapshotTTL time.Duration
	logger    *zap.Logger

	settleMu      sync.Mutex
	settledOnce   map[string]bool // (requestID, budgetID) -> settled, idempotency guard
	maxRetries    uint64
}

func NewEngine(store Store, snapshots *cache.Snapshots, pricing PricingLookup, snapshotTTL time.Duration, maxRetries uint64, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		snapshots:   snapshots,
		pricing:     pricing,
		snapshotTTL: snapshotTTL,
		logger:      logger,
		settledOnce: make(map[string]bool),
		maxRetries:  maxRetries,
	}
}

type budgetSnapshot struct {
	Budgets []models.Budget `json:"budgets"`
}

// Evaluate decides allow/downgrade/block for a prospective request
// against estimatedCost, using a cached snapshot of the tenant's active
// budgets when available.
func (e *Engine) Evaluate(ctx context.Context, tenantID uuid.UUID, agentID, model, workflow string, estimatedCost models.Micros) (Decision, error) {
	budgets, degraded := e.snapshotFor(ctx, tenantID)

	var blocking *models.Budget
	var downgrading []*models.Budget

	now := time.Now()
	for i := range budgets {
		b := &budgets[i]
		if !b.Matches(agentID, model, workflow) {
			continue
		}
		spend := b.SpendMicros
		if now.After(b.ResetAt) || now.Equal(b.ResetAt) {
			spend = 0
		}
		projected := spend + estimatedCost
		limitMicros := b.LimitMicros
		crit := models.Micros(float64(limitMicros) * b.CriticalPercent / 100)

		if projected >= crit {
			switch b.ActionOnBreach {
			case models.BudgetActionBlock:
				if blocking == nil {
					blocking = b
				}
			case models.BudgetActionDowngrade:
				if b.DowngradeModel != "" {
					downgrading = append(downgrading, b)
				}
			}
		}
	}

	// Precedence: block > downgrade > allow.
	if blocking != nil {
		return Decision{Action: ActionBlock, BudgetName: blocking.Name, Degraded: degraded}, nil
	}
	if len(downgrading) > 0 {
		target := cheapestDowngrade(downgrading, e.pricing)
		return Decision{Action: ActionDowngrade, BudgetName: target.Name, DowngradeModel: target.DowngradeModel, Degraded: degraded}, nil
	}
	return Decision{Action: ActionAllow, Degraded: degraded}, nil
}

// cheapestDowngrade picks the budget whose downgrade target has the
// lowest estimated per-million-token input price, tie-broken by budget
// name for determinism.
func cheapestDowngrade(candidates []*models.Budget, pricing PricingLookup) *models.Budget {
	best := candidates[0]
	bestPrice := pricing.EstimatedCostPerMillionInput(best.DowngradeModel)
	for _, b := range candidates[1:] {
		price := pricing.EstimatedCostPerMillionInput(b.DowngradeModel)
		if price < bestPrice || (price == bestPrice && b.Name < best.Name) {
			best = b
			bestPrice = price
		}
	}
	return best
}

func (e *Engine) snapshotFor(ctx context.Context, tenantID uuid.UUID) ([]models.Budget, bool) {
	key := "budget-snapshot:" + tenantID.String()
	if raw, ok := e.snapshots.Get(key); ok {
		var snap budgetSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap.Budgets, false
		}
	}

	budgets, err := e.store.ListActiveBudgets(ctx, tenantID)
	if err != nil {
		e.logger.Warn("budget_unknown: evaluation store unreachable, failing open", zap.Error(err))
		return nil, true
	}

	if raw, err := json.Marshal(budgetSnapshot{Budgets: budgets}); err == nil {
		e.snapshots.Set(key, raw, e.snapshotTTL)
	}
	return budgets, false
}

// InvalidateSnapshot drops a tenant's cached budget snapshot, called by
// Settle when the new spend crosses a warn/crit threshold so the next
// evaluation sees fresh numbers immediately.
func (e *Engine) InvalidateSnapshot(tenantID uuid.UUID) {
	e.snapshots.Invalidate("budget-snapshot:" + tenantID.String())
}

// Settle atomically debits actualCost from every budget matching the
// request. It is idempotent per (requestID, budgetID): a retried
// settlement for the same request never double-charges. Settlement is
// retried with exponential backoff; persistent failure is surfaced to
// the caller so it can raise a critical alert.
func (e *Engine) Settle(ctx context.Context, tenantID uuid.UUID, requestID, agentID, model, workflow string, actualCost models.Micros) error {
	if actualCost < 0 {
		return nil // negative deltas are rejected, not settled as zero.
	}

	budgets, err := e.store.ListActiveBudgets(ctx, tenantID)
	if err != nil {
		return err
	}

	for i := range budgets {
		b := &budgets[i]
		if !b.Matches(agentID, model, workflow) {
			continue
		}

		dedupeKey := requestID + ":" + b.ID.String()
		e.settleMu.Lock()
		if e.settledOnce[dedupeKey] {
			e.settleMu.Unlock()
			continue
		}
		e.settleMu.Unlock()

		now := time.Now()
		if !now.Before(b.ResetAt) {
			if err := e.store.ResetBudget(ctx, b.ID, b.NextReset(now)); err != nil {
				e.logger.Error("budget period reset failed, settling against stale spend", zap.String("budget_id", b.ID.String()), zap.Error(err))
			}
		}

		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.maxRetries)
		budgetID := b.ID
		var newSpend models.Micros
		err := backoff.Retry(func() error {
			var settleErr error
			newSpend, settleErr = e.store.SettleSpend(ctx, budgetID, actualCost)
			return settleErr
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			e.logger.Error("budget settlement failed persistently", zap.String("budget_id", budgetID.String()), zap.Error(err))
			return err
		}

		e.settleMu.Lock()
		e.settledOnce[dedupeKey] = true
		e.settleMu.Unlock()

		warn := models.Micros(float64(b.LimitMicros) * b.WarnPercent / 100)
		crit := models.Micros(float64(b.LimitMicros) * b.CriticalPercent / 100)
		if newSpend >= warn || newSpend >= crit {
			e.InvalidateSnapshot(tenantID)
		}
	}
	return nil
}
