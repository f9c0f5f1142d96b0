package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amerfu/pllm-gateway/pkg/circuitbreaker"
)

func TestAnthropicBuildRequestSetsModelAndHeaders(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "")
	req, err := p.BuildRequest(context.Background(), "claude-haiku", []byte(`{"messages":[]}`), false)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if got := req.Header.Get("x-api-key"); got != "sk-ant-test" {
		t.Fatalf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Fatalf("anthropic-version = %q", got)
	}
}

func TestAnthropicBuildRequestSetsStreamFlag(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "")
	req, err := p.BuildRequest(context.Background(), "claude-haiku", []byte(`{}`), true)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	buf := make([]byte, 256)
	n, _ := req.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), `"stream":true`) {
		t.Fatalf("body missing stream flag: %s", buf[:n])
	}
}

func TestParseAnthropicError(t *testing.T) {
	body := []byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	typ, msg := ParseAnthropicError(body)
	if typ != "overloaded_error" || msg != "busy" {
		t.Fatalf("got %q %q", typ, msg)
	}
}

func TestOpenAIBuildRequestIncludesUsageOnStream(t *testing.T) {
	p := NewOpenAIProvider("sk-test", "")
	req, err := p.BuildRequest(context.Background(), "gpt-4o-mini", []byte(`{}`), true)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	buf := make([]byte, 256)
	n, _ := req.Body.Read(buf)
	body := string(buf[:n])
	if !strings.Contains(body, `"stream_options":{"include_usage":true}`) {
		t.Fatalf("missing stream_options: %s", body)
	}
}

func TestOpenAIBuildRequestSetsBearerAuth(t *testing.T) {
	p := NewOpenAIProvider("sk-test", "")
	req, err := p.BuildRequest(context.Background(), "gpt-4o", []byte(`{}`), false)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestDecodeBufferedUsage(t *testing.T) {
	body := []byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	usage, err := DecodeBufferedUsage(body)
	if err != nil {
		t.Fatalf("DecodeBufferedUsage: %v", err)
	}
	if usage.PromptTokens != 10 || usage.CompletionTokens != 5 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestGoogleBuildRequestSelectsStreamingMethod(t *testing.T) {
	p := NewGoogleProvider("key123", "")
	req, err := p.BuildRequest(context.Background(), "gemini-1.5-flash", []byte(`{}`), true)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !strings.Contains(req.URL.String(), "streamGenerateContent") {
		t.Fatalf("expected streaming endpoint, got %s", req.URL.String())
	}
	if !strings.Contains(req.URL.String(), "alt=sse") {
		t.Fatalf("expected alt=sse, got %s", req.URL.String())
	}
}

func TestGoogleBuildRequestUsesGenerateContentWhenNotStreaming(t *testing.T) {
	p := NewGoogleProvider("key123", "")
	req, err := p.BuildRequest(context.Background(), "gemini-1.5-pro", []byte(`{}`), false)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !strings.Contains(req.URL.String(), ":generateContent") {
		t.Fatalf("expected generateContent endpoint, got %s", req.URL.String())
	}
}

func TestParseGoogleError(t *testing.T) {
	body := []byte(`{"error":{"code":429,"message":"rate limited","status":"RESOURCE_EXHAUSTED"}}`)
	status, msg := ParseGoogleError(body)
	if status != "RESOURCE_EXHAUSTED" || msg != "rate limited" {
		t.Fatalf("got %q %q", status, msg)
	}
}

func TestDispatcherShortCircuitsOnOpenBreaker(t *testing.T) {
	breakers := circuitbreaker.NewManager(1, time.Minute)
	breakers.RecordFailure("claude-opus-4")
	d := NewDispatcher(5*time.Second, breakers)

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	_, err := d.Do("claude-opus-4", req)
	if err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestDispatcherRecordsSuccessOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	breakers := circuitbreaker.NewManager(1, time.Minute)
	d := NewDispatcher(5*time.Second, breakers)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := d.Do("gpt-4o", req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if breakers.IsOpen("gpt-4o") {
		t.Fatalf("breaker should remain closed after 2xx")
	}
}
