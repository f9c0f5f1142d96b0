package security

import (
	"context"
	"math"
	"regexp"
)

// credentialPattern matches a known secret shape; name is used as evidence,
// not as the threat type (every match is "credential_exposure").
type credentialPattern struct {
	name string
	re   *regexp.Regexp
}

var credentialPatterns = []credentialPattern{
	{"anthropic_key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`)},
	{"openai_key", regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`)},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[a-zA-Z0-9-]{10,}`)},
	{"generic_bearer", regexp.MustCompile(`[Bb]earer\s+[a-zA-Z0-9._-]{20,}`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

const (
	minEntropyForSecrets = 4.0
	maxSecretLength      = 256
)

// CredentialExposureDetector scans a response body for literal credential
// material, grounded in the original engine's min_entropy_for_secrets /
// max_secret_length thresholds. Matches a high-confidence pattern outright;
// otherwise falls back to a Shannon-entropy scan of bearer-looking tokens.
type CredentialExposureDetector struct{}

func NewCredentialExposureDetector() *CredentialExposureDetector {
	return &CredentialExposureDetector{}
}

func (d *CredentialExposureDetector) Name() string       { return "credential_exposure" }
func (d *CredentialExposureDetector) ThreatType() string { return "credential_exposure" }
func (d *CredentialExposureDetector) Priority() int       { return 5 }

func (d *CredentialExposureDetector) DetectRequest(ctx context.Context, req *RequestContext) []DetectionResult {
	return d.scan(string(req.Body))
}

func (d *CredentialExposureDetector) DetectResponse(ctx context.Context, resp *ResponseContext) []DetectionResult {
	return d.scan(string(resp.Body))
}

func (d *CredentialExposureDetector) scan(text string) []DetectionResult {
	if text == "" {
		return nil
	}

	for _, p := range credentialPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			return []DetectionResult{baseResult(
				d.Name(), d.ThreatType(), SeverityCritical, 0.95, SourceRule,
				"literal credential pattern found in payload",
				map[string]interface{}{"pattern": p.name},
			)}
		}
	}

	if tok, ent := highestEntropyToken(text); tok != "" && ent >= minEntropyForSecrets {
		confidence := ent / 6.0 // log2(64) upper bound for base64 alphabets
		if confidence > 1.0 {
			confidence = 1.0
		}
		return []DetectionResult{baseResult(
			d.Name(), d.ThreatType(), SeverityMedium, confidence, SourceHeuristic,
			"high-entropy token resembling a secret found in payload",
			map[string]interface{}{"entropy": ent, "length": len(tok)},
		)}
	}
	return nil
}

var tokenSplitter = regexp.MustCompile(`[A-Za-z0-9+/_=-]{20,}`)

// highestEntropyToken returns the longest run-like token in text with the
// highest Shannon entropy, bounded by maxSecretLength.
func highestEntropyToken(text string) (string, float64) {
	var best string
	var bestEntropy float64
	for _, tok := range tokenSplitter.FindAllString(text, -1) {
		if len(tok) > maxSecretLength {
			tok = tok[:maxSecretLength]
		}
		e := shannonEntropy(tok)
		if e > bestEntropy {
			bestEntropy = e
			best = tok
		}
	}
	return best, bestEntropy
}

// shannonEntropy computes bits of entropy per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
