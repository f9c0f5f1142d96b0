package security

import (
	_ "embed"
	"context"
	"fmt"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/open-policy-agent/opa/rego"
)

//go:embed policy.rego
var policySource string

// PolicyEngine evaluates the (threat_type, severity, confidence,
// detection_level) -> action table of the spec as a compiled Rego query,
// so the table lives in its own policy file rather than in Go code. The
// file is embedded at build time, so changing it takes a rebuild. The
// query is prepared once at construction; only Eval runs per request.
type PolicyEngine struct {
	query rego.PreparedEvalQuery
}

func NewPolicyEngine(ctx context.Context) (*PolicyEngine, error) {
	query, err := rego.New(
		rego.Query("data.pllmgateway.security.action"),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("security: compile policy: %w", err)
	}
	return &PolicyEngine{query: query}, nil
}

// Decide resolves the action for one detection given the tenant/agent's
// detection level and whether the finding is eligible for the auto-kill
// switch (confidence >= threshold AND auto_kill_enabled, computed by the
// caller since that's process config, not policy).
func (p *PolicyEngine) Decide(ctx context.Context, result DetectionResult, level models.DetectionLevel, killEligible bool) (models.SecurityAction, error) {
	input := map[string]interface{}{
		"threat_type":      result.ThreatType,
		"severity":         string(result.Severity),
		"confidence":       result.Confidence,
		"detection_level":  string(level),
		"kill_eligible":    killEligible,
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("security: evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return models.SecurityActionLog, nil
	}
	action, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return models.SecurityActionLog, nil
	}
	return models.SecurityAction(action), nil
}
