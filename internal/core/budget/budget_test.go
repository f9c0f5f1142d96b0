package budget

import (
	"context"
	"testing"
	"time"

	"github.com/amerfu/pllm-gateway/internal/cache"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	budgets map[uuid.UUID]*models.Budget
	listErr error
}

func (f *fakeStore) ListActiveBudgets(ctx context.Context, tenantID uuid.UUID) ([]models.Budget, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Budget
	for _, b := range f.budgets {
		if b.TenantID == tenantID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) SettleSpend(ctx context.Context, budgetID uuid.UUID, delta models.Micros) (models.Micros, error) {
	b := f.budgets[budgetID]
	b.SpendMicros += delta
	return b.SpendMicros, nil
}

func (f *fakeStore) ResetBudget(ctx context.Context, budgetID uuid.UUID, nextReset time.Time) error {
	b := f.budgets[budgetID]
	b.SpendMicros = 0
	b.ResetAt = nextReset
	return nil
}

type fakePricing struct {
	prices map[string]float64
}

func (f *fakePricing) EstimatedCostPerMillionInput(model string) float64 {
	return f.prices[model]
}

func newEngine(t *testing.T, store *fakeStore) *Engine {
	t.Helper()
	snapshots, err := cache.NewSnapshots(1024)
	require.NoError(t, err)
	pricing := &fakePricing{prices: map[string]float64{"claude-haiku": 0.8, "claude-sonnet": 3}}
	return NewEngine(store, snapshots, pricing, 30*time.Second, 3, zap.NewNop())
}

func TestEvaluateAllowsUnderLimit(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{budgets: map[uuid.UUID]*models.Budget{}}
	b := models.Budget{TenantID: tenantID, Name: "global", Scope: models.BudgetScopeGlobal,
		LimitMicros: models.MicrosFromUSD(10), SpendMicros: 0, ResetAt: time.Now().Add(time.Hour),
		ActionOnBreach: models.BudgetActionBlock, WarnPercent: 80, CriticalPercent: 100, Active: true}
	b.ID = uuid.New()
	store.budgets[b.ID] = &b

	e := newEngine(t, store)
	d, err := e.Evaluate(context.Background(), tenantID, "agent-1", "claude-sonnet", "", models.MicrosFromUSD(1))
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
}

func TestEvaluateBlocksOverCritical(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{budgets: map[uuid.UUID]*models.Budget{}}
	b := models.Budget{TenantID: tenantID, Name: "tight", Scope: models.BudgetScopeGlobal,
		LimitMicros: models.MicrosFromUSD(1), SpendMicros: models.MicrosFromUSD(0.95), ResetAt: time.Now().Add(time.Hour),
		ActionOnBreach: models.BudgetActionBlock, WarnPercent: 80, CriticalPercent: 100, Active: true}
	b.ID = uuid.New()
	store.budgets[b.ID] = &b

	e := newEngine(t, store)
	d, err := e.Evaluate(context.Background(), tenantID, "agent-1", "claude-sonnet", "", models.MicrosFromUSD(0.10))
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, "tight", d.BudgetName)
}

func TestEvaluatePrefersCheapestDowngrade(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{budgets: map[uuid.UUID]*models.Budget{}}

	b1 := models.Budget{TenantID: tenantID, Name: "expensive-target", Scope: models.BudgetScopeGlobal,
		LimitMicros: models.MicrosFromUSD(1), SpendMicros: models.MicrosFromUSD(0.95), ResetAt: time.Now().Add(time.Hour),
		ActionOnBreach: models.BudgetActionDowngrade, DowngradeModel: "claude-sonnet",
		WarnPercent: 80, CriticalPercent: 100, Active: true}
	b1.ID = uuid.New()
	store.budgets[b1.ID] = &b1

	b2 := models.Budget{TenantID: tenantID, Name: "cheap-target", Scope: models.BudgetScopePerAgent, ScopeKey: "agent-1",
		LimitMicros: models.MicrosFromUSD(1), SpendMicros: models.MicrosFromUSD(0.95), ResetAt: time.Now().Add(time.Hour),
		ActionOnBreach: models.BudgetActionDowngrade, DowngradeModel: "claude-haiku",
		WarnPercent: 80, CriticalPercent: 100, Active: true}
	b2.ID = uuid.New()
	store.budgets[b2.ID] = &b2

	e := newEngine(t, store)
	d, err := e.Evaluate(context.Background(), tenantID, "agent-1", "claude-sonnet", "", models.MicrosFromUSD(0.10))
	require.NoError(t, err)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.Equal(t, "claude-haiku", d.DowngradeModel)
}

func TestEvaluateFailsOpenWhenStoreUnreachable(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{listErr: context.DeadlineExceeded}
	e := newEngine(t, store)

	d, err := e.Evaluate(context.Background(), tenantID, "agent-1", "claude-sonnet", "", models.MicrosFromUSD(100))
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
	assert.True(t, d.Degraded)
}

func TestSettleIsIdempotentPerRequest(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{budgets: map[uuid.UUID]*models.Budget{}}
	b := models.Budget{TenantID: tenantID, Name: "global", Scope: models.BudgetScopeGlobal,
		LimitMicros: models.MicrosFromUSD(10), SpendMicros: 0, ResetAt: time.Now().Add(time.Hour),
		ActionOnBreach: models.BudgetActionAlert, WarnPercent: 80, CriticalPercent: 100, Active: true}
	b.ID = uuid.New()
	store.budgets[b.ID] = &b

	e := newEngine(t, store)
	ctx := context.Background()

	require.NoError(t, e.Settle(ctx, tenantID, "req-1", "agent-1", "claude-sonnet", "", models.MicrosFromUSD(1)))
	require.NoError(t, e.Settle(ctx, tenantID, "req-1", "agent-1", "claude-sonnet", "", models.MicrosFromUSD(1)))

	assert.Equal(t, models.MicrosFromUSD(1), store.budgets[b.ID].SpendMicros, "second settle for the same request must be a no-op")
}

func TestSettleRejectsNegativeDelta(t *testing.T) {
	e := newEngine(t, &fakeStore{budgets: map[uuid.UUID]*models.Budget{}})
	err := e.Settle(context.Background(), uuid.New(), "req-1", "agent-1", "claude-sonnet", "", -1)
	assert.NoError(t, err)
}
