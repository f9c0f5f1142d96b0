package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBufferedAnthropic(t *testing.T) {
	body := []byte(`{"id":"msg_1","usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}`)
	tokens, ok := ExtractBuffered(ProviderAnthropic, body)
	assert.True(t, ok)
	assert.Equal(t, int64(100), tokens.InputTokens)
	assert.Equal(t, int64(50), tokens.OutputTokens)
	assert.Equal(t, int64(10), tokens.CacheCreationTokens)
	assert.Equal(t, int64(5), tokens.CacheReadTokens)
}

func TestExtractBufferedOpenAI(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":200,"completion_tokens":80,"prompt_tokens_details":{"cached_tokens":20}}}`)
	tokens, ok := ExtractBuffered(ProviderOpenAI, body)
	assert.True(t, ok)
	assert.Equal(t, int64(200), tokens.InputTokens)
	assert.Equal(t, int64(80), tokens.OutputTokens)
	assert.Equal(t, int64(20), tokens.CacheReadTokens)
}

func TestExtractBufferedGoogle(t *testing.T) {
	body := []byte(`{"usageMetadata":{"promptTokenCount":300,"candidatesTokenCount":120,"cachedContentTokenCount":30}}`)
	tokens, ok := ExtractBuffered(ProviderGoogle, body)
	assert.True(t, ok)
	assert.Equal(t, int64(300), tokens.InputTokens)
	assert.Equal(t, int64(120), tokens.OutputTokens)
	assert.Equal(t, int64(30), tokens.CacheReadTokens)
}

func TestExtractBufferedMissingUsage(t *testing.T) {
	_, ok := ExtractBuffered(ProviderAnthropic, []byte(`{"id":"msg_1"}`))
	assert.False(t, ok)
}

func TestStreamAccumulatorAnthropicSumsAcrossEvents(t *testing.T) {
	acc := NewStreamAccumulator(ProviderAnthropic)
	acc.Offer([]byte(`{"type":"message_start","message":{"usage":{"input_tokens":100,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}}`))
	acc.Offer([]byte(`{"type":"content_block_delta"}`))
	acc.Offer([]byte(`{"type":"message_delta","usage":{"output_tokens":42}}`))

	tokens := acc.Finish()
	assert.Equal(t, int64(100), tokens.InputTokens)
	assert.Equal(t, int64(42), tokens.OutputTokens)
	assert.Equal(t, int64(10), tokens.CacheCreationTokens)
	assert.Equal(t, int64(5), tokens.CacheReadTokens)
	assert.False(t, tokens.Estimated)
}

func TestStreamAccumulatorFallsBackToByteHeuristic(t *testing.T) {
	acc := NewStreamAccumulator(ProviderAnthropic)
	acc.Offer([]byte(`{"type":"message_start","message":{"usage":{"input_tokens":10}}}`))
	acc.Offer([]byte(`{"type":"content_block_delta","delta":{"text":"some partial text that never resolves"}}`))

	tokens := acc.Finish()
	assert.True(t, tokens.Estimated)
	assert.Greater(t, tokens.OutputTokens, int64(0))
}

func TestParseSSELine(t *testing.T) {
	payload, ok := ParseSSELine(`data: {"type":"message_start"}`)
	assert.True(t, ok)
	assert.Equal(t, `{"type":"message_start"}`, payload)

	_, ok = ParseSSELine("data: [DONE]")
	assert.False(t, ok)

	_, ok = ParseSSELine("event: ping")
	assert.False(t, ok)
}
