// Package usage is the Usage Extractor: it pulls token counts out of
// both buffered JSON responses and incremental SSE event streams for
// Anthropic, OpenAI, and Google, falling back to a byte-count heuristic
// when a stream ends without a terminal usage event.
package usage

import (
	"strings"

	"github.com/tidwall/gjson"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Tokens is the accumulated usage for one request. SSE accumulation adds
// into the same struct across multiple events (Anthropic message_start +
// message_delta), so fields must be summed, not overwritten.
type Tokens struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	Estimated           bool
}

func (t *Tokens) add(other Tokens) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
}

// ExtractBuffered pulls usage fields out of a complete, non-streamed
// response body.
func ExtractBuffered(provider Provider, body []byte) (Tokens, bool) {
	root := gjson.ParseBytes(body)
	switch provider {
	case ProviderAnthropic:
		usage := root.Get("usage")
		if !usage.Exists() {
			return Tokens{}, false
		}
		return Tokens{
			InputTokens:         usage.Get("input_tokens").Int(),
			OutputTokens:        usage.Get("output_tokens").Int(),
			CacheCreationTokens: usage.Get("cache_creation_input_tokens").Int(),
			CacheReadTokens:     usage.Get("cache_read_input_tokens").Int(),
		}, true
	case ProviderOpenAI:
		usage := root.Get("usage")
		if !usage.Exists() {
			return Tokens{}, false
		}
		return Tokens{
			InputTokens:     usage.Get("prompt_tokens").Int(),
			OutputTokens:    usage.Get("completion_tokens").Int(),
			CacheReadTokens: usage.Get("prompt_tokens_details.cached_tokens").Int(),
		}, true
	case ProviderGoogle:
		meta := root.Get("usageMetadata")
		if !meta.Exists() {
			return Tokens{}, false
		}
		return Tokens{
			InputTokens:     meta.Get("promptTokenCount").Int(),
			OutputTokens:    meta.Get("candidatesTokenCount").Int(),
			CacheReadTokens: meta.Get("cachedContentTokenCount").Int(),
		}, true
	}
	return Tokens{}, false
}

// StreamAccumulator folds usage across a sequence of SSE events for one
// request, since Anthropic splits usage across message_start (input) and
// message_delta (output).
type StreamAccumulator struct {
	provider Provider
	tokens   Tokens
	bytesSeen int64
	sawTerminalUsage bool
}

func NewStreamAccumulator(provider Provider) *StreamAccumulator {
	return &StreamAccumulator{provider: provider}
}

// Offer processes one SSE "data: ..." payload (with the "data: " prefix
// already stripped and "[DONE]" already filtered by the caller).
func (a *StreamAccumulator) Offer(payload []byte) {
	a.bytesSeen += int64(len(payload))
	event := gjson.ParseBytes(payload)

	switch a.provider {
	case ProviderAnthropic:
		a.offerAnthropic(event)
	case ProviderOpenAI:
		a.offerOpenAI(event)
	case ProviderGoogle:
		a.offerGoogle(event)
	}
}

func (a *StreamAccumulator) offerAnthropic(event gjson.Result) {
	switch event.Get("type").String() {
	case "message_start":
		u := event.Get("message.usage")
		a.tokens.add(Tokens{
			InputTokens:         u.Get("input_tokens").Int(),
			CacheCreationTokens: u.Get("cache_creation_input_tokens").Int(),
			CacheReadTokens:     u.Get("cache_read_input_tokens").Int(),
		})
	case "message_delta":
		u := event.Get("usage")
		if u.Exists() {
			a.tokens.add(Tokens{OutputTokens: u.Get("output_tokens").Int()})
			a.sawTerminalUsage = true
		}
	}
}

func (a *StreamAccumulator) offerOpenAI(event gjson.Result) {
	u := event.Get("usage")
	if !u.Exists() {
		return
	}
	a.tokens = Tokens{
		InputTokens:     u.Get("prompt_tokens").Int(),
		OutputTokens:    u.Get("completion_tokens").Int(),
		CacheReadTokens: u.Get("prompt_tokens_details.cached_tokens").Int(),
	}
	a.sawTerminalUsage = true
}

func (a *StreamAccumulator) offerGoogle(event gjson.Result) {
	meta := event.Get("usageMetadata")
	if !meta.Exists() {
		return
	}
	a.tokens = Tokens{
		InputTokens:     meta.Get("promptTokenCount").Int(),
		OutputTokens:    meta.Get("candidatesTokenCount").Int(),
		CacheReadTokens: meta.Get("cachedContentTokenCount").Int(),
	}
	a.sawTerminalUsage = true
}

// Finish returns the accumulated tokens. If the stream never produced a
// terminal usage event, it falls back to a bytes/4 heuristic and flags
// the result as estimated.
func (a *StreamAccumulator) Finish() Tokens {
	if a.sawTerminalUsage {
		return a.tokens
	}
	if a.bytesSeen == 0 {
		return a.tokens
	}
	a.tokens.OutputTokens += a.bytesSeen / 4
	a.tokens.Estimated = true
	return a.tokens
}

// ParseSSELine splits a raw SSE line into its payload, reporting whether
// it carries a usable "data: " event (not a comment, not "[DONE]").
func ParseSSELine(line string) (payload string, ok bool) {
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	data := strings.TrimPrefix(line, "data: ")
	data = strings.TrimSpace(data)
	if data == "[DONE]" || data == "" {
		return "", false
	}
	return data, true
}
