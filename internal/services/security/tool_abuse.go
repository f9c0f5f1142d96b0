package security

import (
	"context"
	"fmt"
	"strings"
)

// dangerousTools are tool names whose invocation alone warrants scrutiny,
// independent of arguments — the shape of a tool an agent should rarely, if
// ever, call unsupervised.
var dangerousTools = map[string]Severity{
	"exec":           SeverityHigh,
	"shell":          SeverityHigh,
	"eval":           SeverityHigh,
	"system":         SeverityHigh,
	"delete_all":     SeverityCritical,
	"drop_database":  SeverityCritical,
	"rm_rf":          SeverityCritical,
	"disable_logging": SeverityHigh,
	"grant_admin":    SeverityCritical,
}

// ToolAbuseDetector flags requests invoking tools from a known-dangerous
// list, or invoking the same tool an unusual number of times in one
// request (a sign of a confused planner retrying the same bad call).
type ToolAbuseDetector struct{}

func NewToolAbuseDetector() *ToolAbuseDetector { return &ToolAbuseDetector{} }

func (d *ToolAbuseDetector) Name() string       { return "tool_abuse" }
func (d *ToolAbuseDetector) ThreatType() string { return "tool_abuse" }
func (d *ToolAbuseDetector) Priority() int       { return 8 }

func (d *ToolAbuseDetector) DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult {
	if len(req.ToolNames) == 0 {
		return nil
	}

	counts := make(map[string]int, len(req.ToolNames))
	var results []DetectionResult
	seen := make(map[string]bool)

	for _, name := range req.ToolNames {
		key := strings.ToLower(name)
		counts[key]++
		if seen[key] {
			continue
		}
		if sev, ok := dangerousTools[key]; ok {
			seen[key] = true
			confidence := 0.6
			if sev == SeverityCritical {
				confidence = 0.9
			}
			results = append(results, baseResult(
				d.Name(), d.ThreatType(), sev, confidence, SourceRule,
				fmt.Sprintf("request invokes high-risk tool %q", name),
				map[string]interface{}{"tool": name},
			))
		}
	}

	const repeatThreshold = 5
	for name, n := range counts {
		if n >= repeatThreshold {
			results = append(results, baseResult(
				d.Name(), d.ThreatType(), SeverityMedium, 0.5, SourceHeuristic,
				fmt.Sprintf("tool %q invoked %d times in one request", name, n),
				map[string]interface{}{"tool": name, "count": n},
			))
		}
	}

	return results
}

func (d *ToolAbuseDetector) DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult {
	return nil
}
