package security

import (
	"context"
	"fmt"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
)

const (
	anomalyZScoreThreshold = 2.0
	anomalyMinSamples      = 100
	anomalyMetric          = "response_bytes"
)

// AnomalyDetector scores a request/response pair against the agent's
// rolling baseline for a metric (response size, a stand-in for "this
// interaction looks nothing like this agent's usual traffic") and updates
// the baseline with every observation. It never blocks the hot path: the
// engine only ever calls Analyze off the async queue.
type AnomalyDetector struct{}

func NewAnomalyDetector() *AnomalyDetector { return &AnomalyDetector{} }

func (d *AnomalyDetector) Name() string       { return "behavioral_anomaly" }
func (d *AnomalyDetector) ThreatType() string { return "behavioral_anomaly" }

func (d *AnomalyDetector) Analyze(ctx context.Context, baseline BaselineStore, req *RequestContext, resp *ResponseContext) []DetectionResult {
	if resp == nil || req == nil || req.AgentID == "" {
		return nil
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return nil
	}

	b, err := baseline.GetDetectorBaseline(ctx, tenantID, req.AgentID, anomalyMetric)
	if err != nil || b == nil {
		b = &models.DetectorBaseline{
			TenantID: tenantID,
			AgentID:  req.AgentID,
			Metric:   anomalyMetric,
		}
	}

	value := float64(len(resp.Body))
	z := b.Observe(value)
	b.UpdatedAt = time.Now()

	if err := baseline.UpsertDetectorBaseline(ctx, b); err != nil {
		return nil
	}

	if b.SampleCount < anomalyMinSamples {
		return nil
	}
	if z < anomalyZScoreThreshold && z > -anomalyZScoreThreshold {
		return nil
	}

	confidence := (absf(z) - anomalyZScoreThreshold) / anomalyZScoreThreshold
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.1 {
		confidence = 0.1
	}

	return []DetectionResult{baseResult(
		d.Name(), d.ThreatType(), SeverityLow, confidence, SourceModel,
		fmt.Sprintf("response metric deviates %.1f standard deviations from the agent's baseline", z),
		map[string]interface{}{"metric": anomalyMetric, "z_score": z, "sample_count": b.SampleCount},
	)}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
