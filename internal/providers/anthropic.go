package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amerfu/pllm-gateway/internal/core/usage"
	"github.com/tidwall/sjson"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

type AnthropicProvider struct {
	apiKey  string
	baseURL string
}

func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *AnthropicProvider) Name() Name { return Anthropic }

func (p *AnthropicProvider) UsageProvider() usage.Provider { return usage.ProviderAnthropic }

func (p *AnthropicProvider) BuildRequest(ctx context.Context, model string, body []byte, streaming bool) (*http.Request, error) {
	rewritten, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, fmt.Errorf("anthropic: rewrite model: %w", err)
	}
	if streaming {
		rewritten, err = sjson.SetBytes(rewritten, "stream", true)
		if err != nil {
			return nil, fmt.Errorf("anthropic: set stream flag: %w", err)
		}
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(rewritten))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

// anthropicErrorBody mirrors the shape Anthropic returns on 4xx/5xx so
// the gateway can relay a faithful error type upstream-to-client.
type anthropicErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func ParseAnthropicError(body []byte) (string, string) {
	var e anthropicErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return "unknown_error", string(body)
	}
	return e.Error.Type, e.Error.Message
}
