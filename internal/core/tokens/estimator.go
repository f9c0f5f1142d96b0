// Package tokens is the Token Estimator: a conservative, provider-aware
// pre-flight token count used only for budget gating before a request is
// dispatched upstream. Authoritative counts always come from the Usage
// Extractor after the response returns.
package tokens

import (
	"strings"
)

// Message mirrors the provider-agnostic shape the estimator needs: a
// role and either plain text or multimodal content blocks.
type Message struct {
	Role    string
	Text    string
	Blocks  []ContentBlock
}

type ContentBlock struct {
	Type string // "text" or "image"
	Text string
}

// encoding is the heuristic bytes-per-token ratio for a tokenizer family.
// cl100k_base runs close to 4 bytes/token for English prose; o200k_base
// (o1/o3) is slightly denser. Neither figure claims exactness — this
// estimator only needs to be conservative, not precise.
type encoding struct {
	bytesPerToken float64
	messageOverhead int
}

var (
	cl100kBase = encoding{bytesPerToken: 4.0, messageOverhead: 4}
	o200kBase  = encoding{bytesPerToken: 3.7, messageOverhead: 4}
)

// EncodingFor returns the tokenizer family a model is estimated with.
func EncodingFor(model string) encoding {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") {
		return o200kBase
	}
	return cl100kBase
}

const imageTokenEstimate = 85

// Estimate returns a conservative upper-bound token count for the given
// system prompt and messages, dispatched to the tokenizer family the
// target model uses.
func Estimate(model, systemPrompt string, messages []Message) int {
	enc := EncodingFor(model)
	total := 0

	if systemPrompt != "" {
		total += enc.tokenCount(systemPrompt)
	}

	for _, msg := range messages {
		total += enc.messageOverhead
		if msg.Text != "" {
			total += enc.tokenCount(msg.Text)
			continue
		}
		for _, block := range msg.Blocks {
			switch block.Type {
			case "text":
				total += enc.tokenCount(block.Text)
			case "image":
				total += imageTokenEstimate
			}
		}
	}
	return total
}

func (e encoding) tokenCount(s string) int {
	if s == "" {
		return 0
	}
	// Round up: a conservative estimate must never under-count.
	n := int(float64(len(s))/e.bytesPerToken) + 1
	return n
}

// EstimateFallback is the len(serialized)/4 heuristic used when no
// provider-specific path applies (e.g. an unrecognized message shape).
func EstimateFallback(serialized string) int {
	return len(serialized)/4 + 1
}
