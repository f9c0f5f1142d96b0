package security

import (
	"context"
	"fmt"
	"time"
)

const (
	maxCallsPerMinute = 60
	maxCallsPerHour   = 500
)

// CallCounter is the narrow Redis surface the runaway-loop detector needs:
// an atomic fixed-window counter, the same primitive the rate limiter uses.
type CallCounter interface {
	IncrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RunawayLoopDetector flags an agent making requests faster than the
// configured per-minute/per-hour ceilings, the signature of a stuck
// tool-call loop rather than a human-paced workload.
type RunawayLoopDetector struct {
	counter CallCounter
}

func NewRunawayLoopDetector(counter CallCounter) *RunawayLoopDetector {
	return &RunawayLoopDetector{counter: counter}
}

func (d *RunawayLoopDetector) Name() string       { return "runaway_loop" }
func (d *RunawayLoopDetector) ThreatType() string { return "runaway_loop" }
func (d *RunawayLoopDetector) Priority() int       { return 15 }

func (d *RunawayLoopDetector) DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult {
	if req.AgentID == "" {
		return nil
	}

	minuteKey := fmt.Sprintf("security:calls:%s:%s:min", req.TenantID, req.AgentID)
	hourKey := fmt.Sprintf("security:calls:%s:%s:hr", req.TenantID, req.AgentID)

	minuteCount, err := d.counter.IncrWithExpire(ctx, minuteKey, time.Minute)
	if err != nil {
		return nil
	}
	hourCount, err := d.counter.IncrWithExpire(ctx, hourKey, time.Hour)
	if err != nil {
		return nil
	}

	var confidence float64
	var window string
	switch {
	case minuteCount > maxCallsPerMinute:
		confidence = float64(minuteCount-maxCallsPerMinute) / float64(maxCallsPerMinute)
		window = "minute"
	case hourCount > maxCallsPerHour:
		confidence = float64(hourCount-maxCallsPerHour) / float64(maxCallsPerHour)
		window = "hour"
	default:
		return nil
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return []DetectionResult{baseResult(
		d.Name(), d.ThreatType(), SeverityMedium, confidence, SourceRule,
		"call rate exceeded the configured ceiling",
		map[string]interface{}{"window": window, "minute_count": minuteCount, "hour_count": hourCount},
	)}
}

func (d *RunawayLoopDetector) DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult {
	return nil
}
