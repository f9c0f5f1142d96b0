package security

import (
	"context"
	"regexp"
)

// injectionPattern is one regex/weight pair contributing to the overall
// prompt-injection confidence score. Weights are additive and capped at 1.0.
type injectionPattern struct {
	re     *regexp.Regexp
	weight float64
}

var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`), 0.5},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|guidelines)`), 0.5},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(DAN|developer|jailbreak|unrestricted)\s*mode`), 0.6},
	{regexp.MustCompile(`(?i)(reveal|print|show|output)\s+(your|the)\s+system\s+prompt`), 0.5},
	{regexp.MustCompile(`(?i)pretend\s+(you\s+)?(have\s+no|there\s+are\s+no)\s+(restrictions|rules|limits)`), 0.4},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:`), 0.3},
	{regexp.MustCompile(`(?i)\[\s*SYSTEM\s*\]`), 0.3},
	{regexp.MustCompile(`(?i)override\s+(your\s+)?(safety|content)\s+(policy|filters?)`), 0.5},
}

// PromptInjectionDetector flags known jailbreak/injection phrasing in the
// user-authored portion of a request, grounded in the thresholds from the
// original engine's injection_confidence_{high,medium,low} tiers.
type PromptInjectionDetector struct{}

func NewPromptInjectionDetector() *PromptInjectionDetector { return &PromptInjectionDetector{} }

func (d *PromptInjectionDetector) Name() string       { return "prompt_injection" }
func (d *PromptInjectionDetector) ThreatType() string { return "prompt_injection" }
func (d *PromptInjectionDetector) Priority() int       { return 10 }

func (d *PromptInjectionDetector) DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult {
	text := req.UserText
	if text == "" {
		return nil
	}

	var confidence float64
	var matched []string
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			confidence += p.weight
			matched = append(matched, p.re.String())
		}
	}
	if confidence == 0 {
		return nil
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	severity := SeverityLow
	switch {
	case confidence >= 0.8:
		severity = SeverityHigh
	case confidence >= 0.5:
		severity = SeverityMedium
	}

	return []DetectionResult{baseResult(
		d.Name(), d.ThreatType(), severity, confidence, SourceHeuristic,
		"request text matched known prompt-injection phrasing",
		map[string]interface{}{"matched_patterns": len(matched)},
	)}
}

func (d *PromptInjectionDetector) DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult {
	// Injection attempts live in the request; a model echoing the phrase back
	// isn't itself a new finding.
	return nil
}
