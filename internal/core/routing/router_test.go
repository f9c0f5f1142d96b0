package routing

import (
	"context"
	"testing"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type fakeRoutingStore struct {
	rules    []models.RoutingRule
	recorded map[uuid.UUID]float64
}

func (f *fakeRoutingStore) ListActiveRoutingRules(ctx context.Context, tenantID uuid.UUID) ([]models.RoutingRule, error) {
	return f.rules, nil
}

func (f *fakeRoutingStore) RecordRuleApplied(ctx context.Context, ruleID uuid.UUID, estimatedSavingsUSD float64) error {
	if f.recorded == nil {
		f.recorded = map[uuid.UUID]float64{}
	}
	f.recorded[ruleID] = estimatedSavingsUSD
	return nil
}

type fakeRoutingPricing struct{ prices map[string]float64 }

func (f *fakeRoutingPricing) EstimatedCostPerMillionInput(model string) float64 { return f.prices[model] }

func TestRouteMatchesKeywordRule(t *testing.T) {
	ruleID := uuid.New()
	store := &fakeRoutingStore{rules: []models.RoutingRule{
		{
			BaseModel:      models.BaseModel{ID: ruleID},
			TargetProvider: "anthropic",
			TargetModel:    "claude-haiku",
			Condition:      datatypes.NewJSONType(models.RoutingCondition{ContentKeywords: []string{"summarize"}}),
		},
	}}
	pricing := &fakeRoutingPricing{prices: map[string]float64{"claude-sonnet": 3, "claude-haiku": 0.8}}
	r := NewRouter(store, pricing, zap.NewNop())

	decision, err := r.Route(context.Background(), uuid.New(), Request{
		Model: "claude-sonnet", ConcatenatedText: "please summarize this document", Now: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.Routed)
	assert.Equal(t, "claude-haiku", decision.TargetModel)
	assert.Greater(t, store.recorded[ruleID], 0.0)
}

func TestRouteFirstMatchWins(t *testing.T) {
	store := &fakeRoutingStore{rules: []models.RoutingRule{
		{BaseModel: models.BaseModel{ID: uuid.New()}, TargetModel: "model-a",
			Condition: datatypes.NewJSONType(models.RoutingCondition{MinMessages: 1})},
		{BaseModel: models.BaseModel{ID: uuid.New()}, TargetModel: "model-b",
			Condition: datatypes.NewJSONType(models.RoutingCondition{MinMessages: 1})},
	}}
	r := NewRouter(store, nil, zap.NewNop())

	decision, err := r.Route(context.Background(), uuid.New(), Request{Model: "m", MessageCount: 2})
	require.NoError(t, err)
	assert.Equal(t, "model-a", decision.TargetModel)
}

func TestRouteNoMatchPassesThrough(t *testing.T) {
	store := &fakeRoutingStore{rules: []models.RoutingRule{
		{TargetModel: "model-a", Condition: datatypes.NewJSONType(models.RoutingCondition{SourceModelRegex: "^gpt-"})},
	}}
	r := NewRouter(store, nil, zap.NewNop())

	decision, err := r.Route(context.Background(), uuid.New(), Request{Model: "claude-sonnet"})
	require.NoError(t, err)
	assert.False(t, decision.Routed)
	assert.Equal(t, "claude-sonnet", decision.OriginalModel)
}

func TestSimulateDoesNotRecordStatistics(t *testing.T) {
	store := &fakeRoutingStore{rules: []models.RoutingRule{
		{BaseModel: models.BaseModel{ID: uuid.New()}, TargetModel: "model-a",
			Condition: datatypes.NewJSONType(models.RoutingCondition{MinMessages: 1})},
	}}
	r := NewRouter(store, nil, zap.NewNop())

	_, err := r.Simulate(context.Background(), uuid.New(), Request{Model: "m", MessageCount: 2})
	require.NoError(t, err)
	assert.Empty(t, store.recorded)
}
