package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amerfu/pllm-gateway/internal/core/usage"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

// GoogleProvider targets the Gemini REST API, which selects the model
// and streaming mode via the URL path rather than a body field, so
// routing/downgrade here rewrites the request line instead of the JSON.
type GoogleProvider struct {
	apiKey  string
	baseURL string
}

func NewGoogleProvider(apiKey, baseURL string) *GoogleProvider {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &GoogleProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *GoogleProvider) Name() Name { return Google }

func (p *GoogleProvider) UsageProvider() usage.Provider { return usage.ProviderGoogle }

func (p *GoogleProvider) BuildRequest(ctx context.Context, model string, body []byte, streaming bool) (*http.Request, error) {
	method := "generateContent"
	if streaming {
		method = "streamGenerateContent"
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", strings.TrimSuffix(p.baseURL, "/"), model, method, p.apiKey)
	if streaming {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "alt=sse"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// googleErrorBody mirrors Gemini's error envelope shape.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func ParseGoogleError(body []byte) (string, string) {
	var e googleErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return "unknown_error", string(body)
	}
	return e.Error.Status, e.Error.Message
}
