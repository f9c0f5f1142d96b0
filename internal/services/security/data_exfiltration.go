package security

import "context"

const (
	maxDataVolumeBytes = 100 * 1024 // max_data_volume_kb
	exfilEntropyThresh = 4.5        // entropy_threshold
)

// DataExfiltrationDetector flags unusually large or unusually dense
// (high-entropy, i.e. likely encoded) response payloads, grounded in the
// original engine's max_data_volume_kb / entropy_threshold pair.
type DataExfiltrationDetector struct{}

func NewDataExfiltrationDetector() *DataExfiltrationDetector { return &DataExfiltrationDetector{} }

func (d *DataExfiltrationDetector) Name() string       { return "data_exfiltration" }
func (d *DataExfiltrationDetector) ThreatType() string { return "data_exfiltration" }
func (d *DataExfiltrationDetector) Priority() int       { return 20 }

func (d *DataExfiltrationDetector) DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult {
	return nil
}

func (d *DataExfiltrationDetector) DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult {
	if !resp.Final {
		return nil
	}
	size := len(resp.Body)
	if size < maxDataVolumeBytes {
		return nil
	}

	entropy := shannonEntropy(sample(resp.Body, 4096))
	volumeRatio := float64(size) / float64(maxDataVolumeBytes)
	confidence := 0.3 + 0.1*(volumeRatio-1)
	severity := SeverityLow
	if entropy >= exfilEntropyThresh {
		confidence += 0.3
		severity = SeverityMedium
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return []DetectionResult{baseResult(
		d.Name(), d.ThreatType(), severity, confidence, SourceHeuristic,
		"response payload exceeds the data-volume threshold",
		map[string]interface{}{"size_bytes": size, "entropy": entropy},
	)}
}

// sample takes a bounded prefix of data to keep entropy scoring cheap on
// large payloads.
func sample(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n])
}
