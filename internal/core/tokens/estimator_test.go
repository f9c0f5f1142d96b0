package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCountsSystemPromptAndMessages(t *testing.T) {
	n := Estimate("claude-sonnet", "You are a helpful assistant.", []Message{
		{Role: "user", Text: "What is the capital of France?"},
	})
	assert.Greater(t, n, 0)
}

func TestEstimateUsesO200kForOSeries(t *testing.T) {
	enc := EncodingFor("o1-preview")
	assert.Equal(t, o200kBase, enc)

	enc = EncodingFor("gpt-4o")
	assert.Equal(t, cl100kBase, enc)
}

func TestEstimateCountsImageBlocks(t *testing.T) {
	textOnly := Estimate("gpt-4o", "", []Message{
		{Blocks: []ContentBlock{{Type: "text", Text: "describe this"}}},
	})
	withImage := Estimate("gpt-4o", "", []Message{
		{Blocks: []ContentBlock{{Type: "text", Text: "describe this"}, {Type: "image"}}},
	})
	assert.Greater(t, withImage, textOnly)
}

func TestEstimateFallback(t *testing.T) {
	assert.Equal(t, len("abcdefgh")/4+1, EstimateFallback("abcdefgh"))
}
