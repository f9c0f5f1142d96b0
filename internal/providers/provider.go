// Package providers is the upstream dispatch layer: one adapter per
// supported LLM API that knows its endpoint, auth header shape, and how
// to plug the Usage Extractor into both buffered and streaming
// responses. Upstream calls are wrapped by a per-model circuit breaker
// so a failing model doesn't keep eating request latency.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/core/usage"
	"github.com/amerfu/pllm-gateway/pkg/circuitbreaker"
	"github.com/rs/dnscache"
)

// Name identifies a supported upstream provider.
type Name string

const (
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
	Google    Name = "google"
)

// Provider adapts the gateway's internal request shape to one upstream
// API.
type Provider interface {
	Name() Name
	// BuildRequest sets the target model (for routing and downgrade), in
	// the request body for Anthropic and OpenAI and in the URL path for
	// Google, and returns the outbound *http.Request, ready to send.
	BuildRequest(ctx context.Context, model string, body []byte, streaming bool) (*http.Request, error)
	UsageProvider() usage.Provider
}

// Dispatcher sends a built request upstream through a per-model circuit
// breaker, bounding both buffered and streaming dispatch with the
// configured timeouts.
type Dispatcher struct {
	client       *http.Client
	streamClient *http.Client
	breakers     *circuitbreaker.Manager
}

// newResolvedTransport builds an http.Transport backed by an in-process
// DNS cache, refreshed on a fixed interval, so a burst of requests to the
// same upstream host doesn't pay a resolver round trip each time.
func newResolvedTransport() *http.Transport {
	resolver := &dnscache.Resolver{}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		dialer := &net.Dialer{}
		var dialErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			dialErr = err
		}
		return nil, dialErr
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	return transport
}

func NewDispatcher(bufferedTimeout time.Duration, breakers *circuitbreaker.Manager) *Dispatcher {
	transport := newResolvedTransport()
	return &Dispatcher{
		client: &http.Client{
			Timeout:   bufferedTimeout,
			Transport: transport,
		},
		// No overall Timeout: a streaming upstream response can legitimately
		// run far longer than the buffered timeout. The stream pump enforces
		// its own idle-read deadline between chunks.
		streamClient: &http.Client{
			Transport: transport,
		},
		breakers: breakers,
	}
}

// ErrCircuitOpen is returned when a model's breaker has tripped and the
// call was short-circuited before reaching the network.
var ErrCircuitOpen = fmt.Errorf("providers: circuit open for model")

// Do sends a buffered req, recording the outcome against model's breaker.
func (d *Dispatcher) Do(model string, req *http.Request) (*http.Response, error) {
	return d.do(d.client, model, req)
}

// DoStreaming sends req with no overall client timeout, for SSE upstreams
// the stream pump will read from indefinitely, bounded only by its own
// idle-read deadline between chunks.
func (d *Dispatcher) DoStreaming(model string, req *http.Request) (*http.Response, error) {
	return d.do(d.streamClient, model, req)
}

func (d *Dispatcher) do(client *http.Client, model string, req *http.Request) (*http.Response, error) {
	if d.breakers.IsOpen(model) {
		return nil, ErrCircuitOpen
	}

	resp, err := client.Do(req)
	if err != nil {
		d.breakers.RecordFailure(model)
		return nil, err
	}
	if resp.StatusCode >= 500 {
		d.breakers.RecordFailure(model)
	} else {
		d.breakers.RecordSuccess(model)
	}
	return resp, nil
}

// ReadBufferedBody fully reads and closes a buffered (non-streaming)
// response body.
func ReadBufferedBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
