// Package security is the Security Engine: it runs a set of detectors over
// request and response content, decides what action to take through an
// embedded policy, and coordinates with the stream pump so an async
// finding can still kill a live stream.
package security

import (
	"context"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
)

// Severity mirrors the data model's severity scale; kept as its own type
// so detector code doesn't need to import models for a value type.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Source identifies what produced a DetectionResult.
type Source string

const (
	SourceRule      Source = "rule"
	SourceHeuristic Source = "heuristic"
	SourceModel     Source = "model"
)

// RequestContext is the input every detector sees on the request path.
type RequestContext struct {
	TenantID   string
	AgentID    string
	RequestID  string
	Provider   string
	Model      string
	Body       []byte
	UserText   string // concatenated user-role message content
	ToolNames  []string
	Now        time.Time
}

// ResponseContext is the input every detector sees on the response path.
// Chunk is only meaningful for a streaming response being
// scanned incrementally; Final is true once the whole body/stream is in.
type ResponseContext struct {
	TenantID  string
	AgentID   string
	RequestID string
	Provider  string
	Model     string
	Body      []byte
	Streaming bool
	Chunk     int
	Final     bool
	Now       time.Time
}

// DetectionResult is what a detector returns when it believes it found
// something. Detectors that find nothing return an empty slice, never a
// DetectionResult with Detected=false wrapped in a slice.
type DetectionResult struct {
	Detector    string
	ThreatType  string
	Severity    Severity
	Confidence  float64
	Source      Source
	Description string
	Evidence    map[string]interface{}
}

// baseResult is the shared constructor every concrete detector funnels its
// findings through, mirroring BaseDetector._create_result.
func baseResult(detector, threatType string, severity Severity, confidence float64, source Source, description string, evidence map[string]interface{}) DetectionResult {
	if evidence == nil {
		evidence = map[string]interface{}{}
	}
	return DetectionResult{
		Detector:    detector,
		ThreatType:  threatType,
		Severity:    severity,
		Confidence:  confidence,
		Source:      source,
		Description: description,
		Evidence:    evidence,
	}
}

// SyncDetector runs in the request/response hot path and must complete
// within the engine's per-phase latency budget; a detector that blows the
// budget is skipped for that request and the skip is recorded.
type SyncDetector interface {
	Name() string
	ThreatType() string
	Priority() int
	DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult
	DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult
}

// AsyncDetector runs off the hot path, submitted to the engine's bounded
// queue. It may still demand termination of an in-flight stream, which
// the engine signals back to the stream pump via the kill channel.
type AsyncDetector interface {
	Name() string
	ThreatType() string
	// Analyze runs the (typically slower) detection pass and returns its
	// results; the engine resolves them and decides whether to kill a
	// live stream.
	Analyze(ctx context.Context, baseline BaselineStore, req *RequestContext, resp *ResponseContext) []DetectionResult
}

// BaselineStore is the subset of the authoritative store the anomaly
// detector needs to read and update its per-(tenant, agent, metric)
// rolling statistics.
type BaselineStore interface {
	GetDetectorBaseline(ctx context.Context, tenantID uuid.UUID, agentID, metric string) (*models.DetectorBaseline, error)
	UpsertDetectorBaseline(ctx context.Context, b *models.DetectorBaseline) error
}
