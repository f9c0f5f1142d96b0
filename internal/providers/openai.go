package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amerfu/pllm-gateway/internal/core/usage"
	"github.com/openai/openai-go"
	"github.com/tidwall/sjson"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

type OpenAIProvider struct {
	apiKey  string
	baseURL string
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *OpenAIProvider) Name() Name { return OpenAI }

func (p *OpenAIProvider) UsageProvider() usage.Provider { return usage.ProviderOpenAI }

func (p *OpenAIProvider) BuildRequest(ctx context.Context, model string, body []byte, streaming bool) (*http.Request, error) {
	rewritten, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, fmt.Errorf("openai: rewrite model: %w", err)
	}
	if streaming {
		rewritten, err = sjson.SetBytes(rewritten, "stream", true)
		if err != nil {
			return nil, fmt.Errorf("openai: set stream flag: %w", err)
		}
		// include_usage must be requested explicitly to get a terminal
		// usage chunk; without it the stream falls back to the byte
		// heuristic at Finish().
		rewritten, err = sjson.SetBytes(rewritten, "stream_options.include_usage", true)
		if err != nil {
			return nil, fmt.Errorf("openai: set stream_options: %w", err)
		}
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(rewritten))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return req, nil
}

// DecodeBufferedUsage validates a buffered chat completion body against
// the official SDK's response shape and returns its typed usage block.
// The hot-path extractor (internal/core/usage) still reads usage via
// gjson for speed and provider uniformity; this is the typed
// cross-check used when persisting the UsageRecord for audit.
func DecodeBufferedUsage(body []byte) (openai.CompletionUsage, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return openai.CompletionUsage{}, fmt.Errorf("openai: decode chat completion: %w", err)
	}
	return completion.Usage, nil
}
