// Package routing is the Smart Router: it evaluates a tenant's ordered
// routing rules against a request and, on the first active match,
// rewrites the target provider/model.
package routing

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store loads a tenant's active rules and records rule application
// statistics.
type Store interface {
	ListActiveRoutingRules(ctx context.Context, tenantID uuid.UUID) ([]models.RoutingRule, error)
	RecordRuleApplied(ctx context.Context, ruleID uuid.UUID, estimatedSavingsUSD float64) error
}

// Request is the subset of an inbound call the router's condition
// schema can match against.
type Request struct {
	Model           string
	MessageCount    int
	ConcatenatedText string
	EstimatedTokens int
	AgentID         string
	Now             time.Time
}

type Router struct {
	store   Store
	logger  *zap.Logger
	pricing PricingLookup
}

// PricingLookup lets the router estimate savings when a rule routes to a
// cheaper model.
type PricingLookup interface {
	EstimatedCostPerMillionInput(model string) float64
}

func NewRouter(store Store, pricing PricingLookup, logger *zap.Logger) *Router {
	return &Router{store: store, pricing: pricing, logger: logger}
}

// Route evaluates the tenant's active rules in priority order and
// returns the routing decision, applying the first match.
func (r *Router) Route(ctx context.Context, tenantID uuid.UUID, req Request) (models.RouteDecision, error) {
	decision := models.RouteDecision{OriginalModel: req.Model, Routed: false}

	rules, err := r.store.ListActiveRoutingRules(ctx, tenantID)
	if err != nil {
		r.logger.Warn("routing rule lookup failed, passing request through unrouted", zap.Error(err))
		return decision, nil
	}

	for _, rule := range rules {
		cond := rule.Condition.Data
		if !matches(cond, req) {
			continue
		}

		decision.Routed = true
		decision.RuleID = rule.ID.String()
		decision.Reason = "rule_matched"
		decision.TargetProvider = rule.TargetProvider
		decision.TargetModel = rule.TargetModel

		savings := 0.0
		if r.pricing != nil {
			before := r.pricing.EstimatedCostPerMillionInput(req.Model)
			after := r.pricing.EstimatedCostPerMillionInput(rule.TargetModel)
			if before > after {
				savings = before - after
			}
		}
		if err := r.store.RecordRuleApplied(ctx, rule.ID, savings); err != nil {
			r.logger.Warn("failed to record routing rule statistics", zap.String("rule_id", rule.ID.String()), zap.Error(err))
		}
		return decision, nil
	}

	return decision, nil
}

func matches(cond models.RoutingCondition, req Request) bool {
	if cond.SourceModelRegex != "" {
		re, err := regexp.Compile(cond.SourceModelRegex)
		if err != nil || !re.MatchString(req.Model) {
			return false
		}
	}
	if cond.MinMessages > 0 && req.MessageCount < cond.MinMessages {
		return false
	}
	if cond.TokenEstimateMax > 0 && req.EstimatedTokens > cond.TokenEstimateMax {
		return false
	}
	if len(cond.ContentKeywords) > 0 {
		lower := strings.ToLower(req.ConcatenatedText)
		found := false
		for _, kw := range cond.ContentKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if cond.TimeOfDayRange != "" && !withinTimeOfDay(cond.TimeOfDayRange, req.Now) {
		return false
	}
	if cond.AgentID != "" && cond.AgentID != req.AgentID {
		return false
	}
	return true
}

// withinTimeOfDay checks a "HH:MM-HH:MM" UTC range, including ranges
// that wrap past midnight.
func withinTimeOfDay(spec string, now time.Time) bool {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return true
	}
	start, err1 := time.Parse("15:04", parts[0])
	end, err2 := time.Parse("15:04", parts[1])
	if err1 != nil || err2 != nil {
		return true
	}
	nowUTC := now.UTC()
	nowMinutes := nowUTC.Hour()*60 + nowUTC.Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	endMinutes := end.Hour()*60 + end.Minute()

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= endMinutes
	}
	return nowMinutes >= startMinutes || nowMinutes <= endMinutes
}

// Simulate runs Route without recording statistics, used by the
// admin dry-run endpoint.
func (r *Router) Simulate(ctx context.Context, tenantID uuid.UUID, req Request) (models.RouteDecision, error) {
	decision := models.RouteDecision{OriginalModel: req.Model, Routed: false}
	rules, err := r.store.ListActiveRoutingRules(ctx, tenantID)
	if err != nil {
		return decision, err
	}
	for _, rule := range rules {
		if matches(rule.Condition.Data, req) {
			decision.Routed = true
			decision.RuleID = rule.ID.String()
			decision.Reason = "rule_matched"
			decision.TargetProvider = rule.TargetProvider
			decision.TargetModel = rule.TargetModel
			return decision, nil
		}
	}
	return decision, nil
}
