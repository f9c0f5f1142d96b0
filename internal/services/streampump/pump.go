// Package streampump is the Stream Pump: it relays an upstream SSE
// response to the client line by line, never buffering the full body,
// while feeding each event to the Usage Extractor and the Security
// Engine's response-path detectors. A security finding that demands
// termination closes the upstream read and emits a synthetic terminal
// event instead of silently dropping the connection.
package streampump

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/core/usage"
	"github.com/amerfu/pllm-gateway/internal/services/security"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KillSwitch is the subset of security.Engine the pump needs: register a
// stream's kill channel before relaying and scan each chunk as it passes
// through.
type KillSwitch interface {
	RegisterStream(requestID string) *security.StreamSignal
	ReleaseStream(requestID string)
	ScanResponse(ctx context.Context, tenantID uuid.UUID, resp *security.ResponseContext) security.Outcome
	SubmitAsync(tenantID uuid.UUID, agentID string, req *security.RequestContext, resp *security.ResponseContext)
}

// Result is what the pump learned by the time the stream ended, whether
// normally, on upstream EOF, or because a detector killed it.
type Result struct {
	Tokens  usage.Tokens
	Killed  bool
	Outcome security.Outcome
	Chunks  int
}

// Pump relays one upstream SSE body to an http.ResponseWriter.
type Pump struct {
	engine KillSwitch
	logger *zap.Logger
}

func New(engine KillSwitch, logger *zap.Logger) *Pump {
	return &Pump{engine: engine, logger: logger}
}

// Relay streams upstream line by line into w, flushing after every line so
// the client sees events as they arrive. It stops early if ctx is
// cancelled, a registered kill signal fires, or idleTimeout elapses
// between two chunks, in which case it writes a synthetic terminal SSE
// event before returning. idleTimeout <= 0 disables the watchdog.
func (p *Pump) Relay(
	ctx context.Context,
	w http.ResponseWriter,
	upstream io.ReadCloser,
	tenantID uuid.UUID,
	reqCtx *security.RequestContext,
	provider usage.Provider,
	idleTimeout time.Duration,
) Result {
	defer upstream.Close()

	flusher, _ := w.(http.Flusher)
	sig := p.engine.RegisterStream(reqCtx.RequestID)
	defer p.engine.ReleaseStream(reqCtx.RequestID)

	idled := make(chan struct{})
	var idleTimer *time.Timer
	if idleTimeout > 0 {
		idleTimer = time.AfterFunc(idleTimeout, func() {
			close(idled)
			upstream.Close()
		})
		defer idleTimer.Stop()
	}

	acc := usage.NewStreamAccumulator(provider)
	var lastPayload []byte
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := Result{}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			p.writeKillEvent(w, flusher, "request cancelled")
			result.Killed = true
			result.Tokens = acc.Finish()
			return result
		case <-sig.Killed():
			p.writeKillEvent(w, flusher, "terminated by security policy")
			result.Killed = true
			result.Tokens = acc.Finish()
			return result
		case <-idled:
			p.writeKillEvent(w, flusher, "upstream idle timeout")
			result.Killed = true
			result.Tokens = acc.Finish()
			return result
		default:
		}
		if idleTimer != nil {
			idleTimer.Reset(idleTimeout)
		}

		line := scanner.Text()
		if _, err := fmt.Fprintf(w, "%s\n\n", line); err != nil {
			p.logger.Warn("stream pump: client write failed", zap.Error(err))
			break
		}
		if flusher != nil {
			flusher.Flush()
		}

		payload, ok := usage.ParseSSELine(line)
		if !ok {
			continue
		}
		result.Chunks++
		acc.Offer([]byte(payload))
		lastPayload = []byte(payload)

		resp := &security.ResponseContext{
			TenantID:  reqCtx.TenantID,
			AgentID:   reqCtx.AgentID,
			RequestID: reqCtx.RequestID,
			Provider:  string(provider),
			Model:     reqCtx.Model,
			Body:      []byte(payload),
			Streaming: true,
			Chunk:     result.Chunks,
			Now:       time.Now(),
		}
		outcome := p.engine.ScanResponse(ctx, tenantID, resp)
		if outcome.Action == "kill" {
			p.writeKillEvent(w, flusher, outcome.Summary)
			result.Killed = true
			result.Outcome = outcome
			result.Tokens = acc.Finish()
			return result
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("stream pump: upstream read failed", zap.Error(err))
	}

	result.Tokens = acc.Finish()
	p.engine.SubmitAsync(tenantID, reqCtx.AgentID, reqCtx, &security.ResponseContext{
		TenantID:  reqCtx.TenantID,
		AgentID:   reqCtx.AgentID,
		RequestID: reqCtx.RequestID,
		Provider:  string(provider),
		Model:     reqCtx.Model,
		Body:      lastPayload,
		Streaming: true,
		Chunk:     result.Chunks,
		Final:     true,
		Now:       time.Now(),
	})
	return result
}

func (p *Pump) writeKillEvent(w http.ResponseWriter, flusher http.Flusher, reason string) {
	fmt.Fprintf(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"security_termination\",\"message\":%q}}\n\n", reason)
	if flusher != nil {
		flusher.Flush()
	}
}
