// Package pipeline is the Pipeline Orchestrator: it drives every inbound
// proxy request through the fixed phase sequence — authenticate, rate
// check, scan, evaluate budget, route, dispatch upstream, extract usage,
// compute cost, settle budget, log — and maps a failure at any phase to
// a stable error kind and HTTP status. Every terminal state, success or
// failure, produces exactly one UsageRecord.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amerfu/pllm-gateway/internal/core/budget"
	"github.com/amerfu/pllm-gateway/internal/core/cost"
	"github.com/amerfu/pllm-gateway/internal/core/credential"
	"github.com/amerfu/pllm-gateway/internal/core/ratelimit"
	"github.com/amerfu/pllm-gateway/internal/core/routing"
	"github.com/amerfu/pllm-gateway/internal/core/tokens"
	"github.com/amerfu/pllm-gateway/internal/core/usage"
	"github.com/amerfu/pllm-gateway/internal/middleware"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/providers"
	"github.com/amerfu/pllm-gateway/internal/services/security"
	"github.com/amerfu/pllm-gateway/internal/services/streampump"
	"github.com/amerfu/pllm-gateway/internal/services/usagelog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// errorKind is one of the stable error type strings surfaced to the
// client in the error body and used to select the HTTP status.
type errorKind string

const (
	kindUnauthenticated errorKind = "unauthenticated"
	kindAuthUnavailable errorKind = "auth_unavailable"
	kindRateLimited     errorKind = "rate_limited"
	kindBadRequest      errorKind = "bad_request"
	kindBudgetExceeded  errorKind = "budget_exceeded"
	kindSecurityBlocked errorKind = "security_blocked"
	kindUpstreamTimeout errorKind = "upstream_timeout"
	kindUpstreamError   errorKind = "upstream_error"
	kindInternal        errorKind = "internal_error"
)

var statusForKind = map[errorKind]int{
	kindUnauthenticated: http.StatusUnauthorized,
	kindAuthUnavailable: http.StatusServiceUnavailable,
	kindRateLimited:     http.StatusTooManyRequests,
	kindBadRequest:      http.StatusBadRequest,
	kindBudgetExceeded:  http.StatusForbidden,
	kindSecurityBlocked: http.StatusForbidden,
	kindUpstreamTimeout: http.StatusGatewayTimeout,
	kindUpstreamError:   http.StatusBadGateway,
	kindInternal:        http.StatusInternalServerError,
}

// phaseErr carries the failed phase's outcome through to the single
// logging tail, so every early return still emits a UsageRecord.
type phaseErr struct {
	kind       errorKind
	message    string
	budgetName string
}

func (e *phaseErr) Error() string { return string(e.kind) + ": " + e.message }

// AgentHeader is the header agent identity is read from. The spec's data
// model only documents agent as a nullable field on requests; there is
// no wire contract for how the caller supplies it, so this gateway
// follows the same convention as its tenant-key headers: a plain,
// optional request header.
const AgentHeader = "X-Agent-Id"

// Config bundles the orchestrator's tunables, sourced from config.Config.
type Config struct {
	RateLimitEnabled   bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	UpstreamTimeout    time.Duration
	StreamIdleTimeout  time.Duration
}

// Orchestrator owns every phase dependency and drives one request at a
// time through the full pipeline. It is safe for concurrent use; no
// cross-request state is held beyond the injected handles.
type Orchestrator struct {
	cfg Config

	credentials *credential.Store
	limiter     *ratelimit.Limiter
	security    *security.Engine
	budgets     *budget.Engine
	router      *routing.Router
	calculator  *cost.Calculator
	dispatcher  *providers.Dispatcher
	pump        *streampump.Pump
	usageLog    *usagelog.Logger

	providerSet map[providers.Name]providers.Provider

	logger *zap.Logger
	tracer oteltrace.Tracer
}

func New(
	cfg Config,
	credentials *credential.Store,
	limiter *ratelimit.Limiter,
	securityEngine *security.Engine,
	budgets *budget.Engine,
	router *routing.Router,
	calculator *cost.Calculator,
	dispatcher *providers.Dispatcher,
	pump *streampump.Pump,
	usageLog *usagelog.Logger,
	providerSet map[providers.Name]providers.Provider,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		credentials: credentials,
		limiter:     limiter,
		security:    securityEngine,
		budgets:     budgets,
		router:      router,
		calculator:  calculator,
		dispatcher:  dispatcher,
		pump:        pump,
		usageLog:    usageLog,
		providerSet: providerSet,
		logger:      logger,
		tracer:      otel.Tracer("pllm-gateway/pipeline"),
	}
}

// inboundRequest is the provider-agnostic shape the orchestrator parses
// out of the raw body to drive routing, budget estimation, and security
// scanning without needing to understand each provider's full schema.
type inboundRequest struct {
	raw          []byte
	model        string
	streaming    bool
	messageCount int
	userText     string
	toolNames    []string
}

// run accumulates everything the final UsageRecord needs as the pipeline
// advances; every phase mutates it in place.
type run struct {
	start                 time.Time
	requestID             string
	tenantID              uuid.UUID
	credentialFingerprint string
	agentID               string
	provider              providers.Name
	in                    inboundRequest

	effectiveModel string
	routed         bool
	routingRuleID  string

	tokens       usage.Tokens
	costResult   cost.Result
	costComputed bool
	streamed     bool
	statusCode   int
	outcome      string
	securityAction string
	rateLimitRemaining int
	usageAuditMismatch bool
}

// Handle drives one inbound proxy request end to end, writing either a
// successful relay or a structured error body to w. provider identifies
// which upstream API this route speaks.
func (o *Orchestrator) Handle(w http.ResponseWriter, r *http.Request, provider providers.Name) {
	ctx := r.Context()
	rn := &run{
		start:              time.Now(),
		requestID:          uuid.NewString(),
		provider:           provider,
		agentID:            r.Header.Get(AgentHeader),
		statusCode:         http.StatusOK,
		outcome:            "success",
		rateLimitRemaining: -1,
	}
	w.Header().Set("x-request-id", rn.requestID)

	cred, perr := o.authenticate(ctx, r, rn)
	if perr != nil {
		o.fail(w, rn, perr)
		return
	}
	rn.tenantID = cred.TenantID
	rn.credentialFingerprint = cred.Fingerprint

	if perr := o.checkRateLimit(ctx, rn); perr != nil {
		o.fail(w, rn, perr)
		return
	}

	if perr := o.parseRequest(ctx, r, rn); perr != nil {
		o.fail(w, rn, perr)
		return
	}

	if perr := o.scanRequest(ctx, rn); perr != nil {
		o.fail(w, rn, perr)
		return
	}

	if perr := o.evaluateBudget(ctx, rn); perr != nil {
		o.fail(w, rn, perr)
		return
	}

	o.route(ctx, rn)

	prov, ok := o.providerSet[provider]
	if !ok {
		o.fail(w, rn, &phaseErr{kind: kindInternal, message: "no provider configured for " + string(provider)})
		return
	}

	o.dispatch(ctx, w, r, rn, prov)

	o.settle(ctx, rn)
	o.log(rn)
}

func (o *Orchestrator) span(ctx context.Context, phase string) (context.Context, oteltrace.Span) {
	return o.tracer.Start(ctx, "pipeline."+phase)
}

// authenticate is the "received -> authenticated" transition.
func (o *Orchestrator) authenticate(ctx context.Context, r *http.Request, rn *run) (*models.Credential, *phaseErr) {
	ctx, span := o.span(ctx, "authenticate")
	defer span.End()

	secret, err := credential.ExtractSecret(r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &phaseErr{kind: kindUnauthenticated, message: "missing credential"}
	}

	cred, err := o.credentials.Resolve(ctx, secret)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, credential.ErrUnavailable) {
			return nil, &phaseErr{kind: kindAuthUnavailable, message: "credential store unreachable"}
		}
		return nil, &phaseErr{kind: kindUnauthenticated, message: "invalid or inactive credential"}
	}
	return cred, nil
}

// checkRateLimit is the "authenticated -> rate_checked" transition. A
// store failure fails open (the limiter admits the request with
// Remaining 0 and never returns an error here).
func (o *Orchestrator) checkRateLimit(ctx context.Context, rn *run) *phaseErr {
	if !o.cfg.RateLimitEnabled {
		return nil
	}
	ctx, span := o.span(ctx, "rate_check")
	defer span.End()

	key := rn.credentialFingerprint
	decision, err := o.limiter.Allow(ctx, key, o.cfg.RateLimitRequests, o.cfg.RateLimitWindow)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil
	}
	rn.rateLimitRemaining = decision.Remaining
	if !decision.Allowed {
		return &phaseErr{kind: kindRateLimited, message: "rate limit exceeded"}
	}
	return nil
}

// parseRequest reads the body once, decodes the provider-agnostic shape
// the rest of the pipeline needs, and rewinds nothing: downstream phases
// reuse rn.in.raw rather than re-reading r.Body.
func (o *Orchestrator) parseRequest(ctx context.Context, r *http.Request, rn *run) *phaseErr {
	_, span := o.span(ctx, "parse_request")
	defer span.End()

	body, err := readAll(r)
	if err != nil {
		return &phaseErr{kind: kindBadRequest, message: "failed to read request body"}
	}
	if !gjson.ValidBytes(body) {
		return &phaseErr{kind: kindBadRequest, message: "invalid JSON body"}
	}

	root := gjson.ParseBytes(body)
	model := root.Get("model").String()
	if model == "" {
		return &phaseErr{kind: kindBadRequest, message: "model is required"}
	}

	in := inboundRequest{
		raw:       body,
		model:     model,
		streaming: root.Get("stream").Bool(),
	}

	var texts []string
	var tools []string
	for _, msg := range root.Get("messages").Array() {
		in.messageCount++
		role := msg.Get("role").String()
		if role != "user" {
			continue
		}
		content := msg.Get("content")
		if content.Type == gjson.String {
			texts = append(texts, content.String())
			continue
		}
		for _, block := range content.Array() {
			if block.Get("type").String() == "text" {
				texts = append(texts, block.Get("text").String())
			}
			if block.Get("type").String() == "tool_use" {
				tools = append(tools, block.Get("name").String())
			}
		}
	}
	in.userText = joinStrings(texts, "\n")
	in.toolNames = tools

	rn.in = in
	rn.effectiveModel = model
	return nil
}

// scanRequest is the "rate_checked -> request_scanned" transition. A
// detector panic or timeout never fails the request (the engine itself
// absorbs those); only an enforced block/kill verdict does.
func (o *Orchestrator) scanRequest(ctx context.Context, rn *run) *phaseErr {
	ctx, span := o.span(ctx, "request_scanned")
	defer span.End()

	reqCtx := &security.RequestContext{
		TenantID:  rn.tenantID.String(),
		AgentID:   rn.agentID,
		RequestID: rn.requestID,
		Provider:  string(rn.provider),
		Model:     rn.in.model,
		Body:      rn.in.raw,
		UserText:  rn.in.userText,
		ToolNames: rn.in.toolNames,
		Now:       time.Now(),
	}
	outcome := o.security.ScanRequest(ctx, rn.tenantID, reqCtx)
	o.security.SubmitAsync(rn.tenantID, rn.agentID, reqCtx, nil)
	if outcome.Action == models.SecurityActionKill || outcome.Action == models.SecurityActionBlock {
		rn.securityAction = string(outcome.Action)
		span.SetAttributes(attribute.String("security.action", string(outcome.Action)))
		return &phaseErr{kind: kindSecurityBlocked, message: outcome.Summary}
	}
	rn.securityAction = string(outcome.Action)
	return nil
}

// evaluateBudget is the "request_scanned -> budget_evaluated" transition.
// A downgrade rewrites rn.effectiveModel before routing runs so the
// Smart Router sees the post-downgrade model.
func (o *Orchestrator) evaluateBudget(ctx context.Context, rn *run) *phaseErr {
	ctx, span := o.span(ctx, "budget_evaluated")
	defer span.End()

	estimatedTokens := tokens.Estimate(rn.in.model, "", []tokens.Message{{Role: "user", Text: rn.in.userText}})
	estimate := o.calculator.Calculate(string(rn.provider), rn.in.model, int64(estimatedTokens), 0, 0, 0)

	decision, err := o.budgets.Evaluate(ctx, rn.tenantID, rn.agentID, rn.in.model, "", estimate.TotalMicros)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil
	}
	if decision.Degraded {
		span.SetAttributes(attribute.Bool("budget.degraded", true))
	}

	switch decision.Action {
	case budget.ActionBlock:
		return &phaseErr{kind: kindBudgetExceeded, message: "budget exceeded", budgetName: decision.BudgetName}
	case budget.ActionDowngrade:
		rn.effectiveModel = decision.DowngradeModel
	}
	return nil
}

// route is the "budget_evaluated -> routed" transition. Routing failure
// degrades to passthrough with the (possibly already downgraded) model,
// never failing the request (internal/core/routing.Router already does
// this internally for Route; Simulate is reserved for the admin dry run).
func (o *Orchestrator) route(ctx context.Context, rn *run) {
	ctx, span := o.span(ctx, "routed")
	defer span.End()

	req := routing.Request{
		Model:            rn.effectiveModel,
		MessageCount:     rn.in.messageCount,
		ConcatenatedText: rn.in.userText,
		EstimatedTokens:  tokens.Estimate(rn.effectiveModel, "", []tokens.Message{{Role: "user", Text: rn.in.userText}}),
		AgentID:          rn.agentID,
		Now:              time.Now(),
	}
	decision, err := o.router.Route(ctx, rn.tenantID, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if decision.Routed {
		rn.routed = true
		rn.routingRuleID = decision.RuleID
		rn.effectiveModel = decision.TargetModel
	}
}

// dispatch drives "routed -> dispatched -> (buffered_completed |
// streaming_completed) -> usage_extracted". It writes directly to w: a
// successful relay, or a structured error body on upstream failure.
func (o *Orchestrator) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, rn *run, prov providers.Provider) {
	ctx, span := o.span(ctx, "dispatched")
	defer span.End()

	httpReq, err := prov.BuildRequest(ctx, rn.effectiveModel, rn.in.raw, rn.in.streaming)
	if err != nil {
		o.writeUpstreamFailure(w, rn, &phaseErr{kind: kindBadRequest, message: "failed to build upstream request"})
		return
	}

	if rn.in.streaming {
		o.dispatchStreaming(ctx, w, httpReq, rn, prov)
		return
	}
	o.dispatchBuffered(ctx, w, httpReq, rn, prov)
}

func (o *Orchestrator) dispatchBuffered(ctx context.Context, w http.ResponseWriter, httpReq *http.Request, rn *run, prov providers.Provider) {
	timeoutCtx, cancel := context.WithTimeout(ctx, o.cfg.UpstreamTimeout)
	defer cancel()
	httpReq = httpReq.WithContext(timeoutCtx)

	resp, err := o.dispatcher.Do(rn.effectiveModel, httpReq)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			o.writeUpstreamFailure(w, rn, &phaseErr{kind: kindUpstreamTimeout, message: "upstream request timed out"})
			return
		}
		o.writeUpstreamFailure(w, rn, &phaseErr{kind: kindUpstreamError, message: err.Error()})
		return
	}

	body, err := providers.ReadBufferedBody(resp)
	if err != nil {
		o.writeUpstreamFailure(w, rn, &phaseErr{kind: kindUpstreamError, message: "failed to read upstream body"})
		return
	}

	respCtx := &security.ResponseContext{
		TenantID:  rn.tenantID.String(),
		AgentID:   rn.agentID,
		RequestID: rn.requestID,
		Provider:  string(rn.provider),
		Model:     rn.effectiveModel,
		Body:      body,
		Final:     true,
		Now:       time.Now(),
	}
	outcome := o.security.ScanResponse(ctx, rn.tenantID, respCtx)
	o.security.SubmitAsync(rn.tenantID, rn.agentID, nil, respCtx)
	if outcome.Action == models.SecurityActionKill || outcome.Action == models.SecurityActionBlock {
		rn.securityAction = string(outcome.Action)
		rn.statusCode = http.StatusForbidden
		rn.outcome = "security_blocked"
		writeError(w, http.StatusForbidden, kindSecurityBlocked, outcome.Summary, "")
		return
	}

	rn.statusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		rn.outcome = "upstream_error"
	}
	if t, ok := usage.ExtractBuffered(prov.UsageProvider(), body); ok {
		rn.tokens = t
	}
	if rn.provider == providers.OpenAI && resp.StatusCode < 400 {
		o.auditOpenAIUsage(rn, body)
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("x-acc-model", rn.effectiveModel)
	if resp.StatusCode < 400 {
		o.computeCost(ctx, rn)
		w.Header().Set("x-acc-cost", rn.costResult.TotalMicros.String())
		w.Header().Set("x-acc-tokens", itoa(int(rn.tokens.InputTokens+rn.tokens.OutputTokens)))
	}
	if rn.rateLimitRemaining >= 0 {
		w.Header().Set("x-ratelimit-remaining", itoa(rn.rateLimitRemaining))
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// auditOpenAIUsage cross-checks the gjson hot-path token extraction
// against the official SDK's typed response shape. The typed decode
// never prices the request; it only flags the UsageRecord when the two
// disagree, so a drift in gjson's field paths surfaces in the audit
// trail instead of silently mispricing.
func (o *Orchestrator) auditOpenAIUsage(rn *run, body []byte) {
	typed, err := providers.DecodeBufferedUsage(body)
	if err != nil {
		return
	}
	if typed.PromptTokens != rn.tokens.InputTokens || typed.CompletionTokens != rn.tokens.OutputTokens {
		rn.usageAuditMismatch = true
		o.logger.Warn("openai usage audit mismatch",
			zap.String("request_id", rn.requestID),
			zap.Int64("gjson_prompt_tokens", rn.tokens.InputTokens),
			zap.Int64("sdk_prompt_tokens", typed.PromptTokens),
			zap.Int64("gjson_completion_tokens", rn.tokens.OutputTokens),
			zap.Int64("sdk_completion_tokens", typed.CompletionTokens),
		)
	}
}

func (o *Orchestrator) dispatchStreaming(ctx context.Context, w http.ResponseWriter, httpReq *http.Request, rn *run, prov providers.Provider) {
	resp, err := o.dispatcher.DoStreaming(rn.effectiveModel, httpReq)
	if err != nil {
		o.writeUpstreamFailure(w, rn, &phaseErr{kind: kindUpstreamError, message: err.Error()})
		return
	}
	if resp.StatusCode >= 400 {
		body, _ := providers.ReadBufferedBody(resp)
		rn.statusCode = resp.StatusCode
		rn.outcome = "upstream_error"
		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("x-acc-model", rn.effectiveModel)
	if rn.rateLimitRemaining >= 0 {
		w.Header().Set("x-ratelimit-remaining", itoa(rn.rateLimitRemaining))
	}
	w.WriteHeader(http.StatusOK)

	sw := middleware.NewRelayResponseWriter(w)
	reqCtx := &security.RequestContext{
		TenantID:  rn.tenantID.String(),
		AgentID:   rn.agentID,
		RequestID: rn.requestID,
		Model:     rn.effectiveModel,
	}

	result := o.pump.Relay(ctx, sw, resp.Body, rn.tenantID, reqCtx, prov.UsageProvider(), o.cfg.StreamIdleTimeout)
	rn.tokens = result.Tokens
	rn.streamed = true
	rn.statusCode = http.StatusOK
	if result.Killed {
		rn.outcome = "security_blocked"
		rn.securityAction = string(result.Outcome.Action)
	}
}

func (o *Orchestrator) writeUpstreamFailure(w http.ResponseWriter, rn *run, perr *phaseErr) {
	status := statusForKind[perr.kind]
	rn.statusCode = status
	rn.outcome = string(perr.kind)
	writeError(w, status, perr.kind, perr.message, perr.budgetName)
}

// computeCost is the "usage_extracted -> cost_computed" transition. It is
// idempotent: dispatchBuffered may already have priced the request to
// populate response headers, in which case settle just reuses the result.
func (o *Orchestrator) computeCost(ctx context.Context, rn *run) {
	if rn.costComputed {
		return
	}
	_, span := o.span(ctx, "cost_computed")
	defer span.End()
	rn.costResult = o.calculator.Calculate(string(rn.provider), rn.effectiveModel,
		rn.tokens.InputTokens, rn.tokens.OutputTokens, rn.tokens.CacheCreationTokens, rn.tokens.CacheReadTokens)
	rn.costComputed = true
}

// settle is the "usage_extracted -> cost_computed -> budget_settled"
// transition. It only runs when an upstream call actually happened.
func (o *Orchestrator) settle(ctx context.Context, rn *run) {
	o.computeCost(ctx, rn)

	_, span := o.span(ctx, "budget_settled")
	defer span.End()
	if err := o.budgets.Settle(ctx, rn.tenantID, rn.requestID, rn.agentID, rn.effectiveModel, "", rn.costResult.TotalMicros); err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("budget settlement failed persistently, escalating",
			zap.String("request_id", rn.requestID), zap.Error(err))
	}
}

// log is the "budget_settled -> logged -> done" transition: exactly one
// UsageRecord per terminal request state, including early failures.
func (o *Orchestrator) log(rn *run) {
	rec := models.UsageRecord{
		TenantID:         rn.tenantID,
		AgentID:          rn.agentID,
		RequestID:        rn.requestID,
		Provider:         string(rn.provider),
		RequestedModel:   rn.in.model,
		ServedModel:      rn.effectiveModel,
		Routed:           rn.routed,
		RoutingRuleID:    rn.routingRuleID,
		PromptTokens:     rn.tokens.InputTokens,
		CompletionTokens: rn.tokens.OutputTokens,
		CacheReadTokens:  rn.tokens.CacheReadTokens,
		CacheWriteTokens: rn.tokens.CacheCreationTokens,
		CostMicros:       rn.costResult.TotalMicros,
		PricingSource:    rn.costResult.PricingSource,
		UsageEstimated:   rn.tokens.Estimated,
		Streamed:         rn.streamed,
		StatusCode:       rn.statusCode,
		Outcome:          rn.outcome,
		LatencyMS:        time.Since(rn.start).Milliseconds(),
		SecurityAction:   rn.securityAction,
		UsageAuditMismatch: rn.usageAuditMismatch,
		OccurredAt:       rn.start,
	}
	o.usageLog.Log(rec)
}

// fail writes a structured error body for a phase that failed before any
// upstream dispatch, then still logs a zeroed UsageRecord.
func (o *Orchestrator) fail(w http.ResponseWriter, rn *run, perr *phaseErr) {
	status, ok := statusForKind[perr.kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	rn.statusCode = status
	rn.outcome = string(perr.kind)
	if rn.rateLimitRemaining >= 0 {
		w.Header().Set("x-ratelimit-remaining", itoa(rn.rateLimitRemaining))
	}
	writeError(w, status, perr.kind, perr.message, perr.budgetName)
	o.log(rn)
}

func writeError(w http.ResponseWriter, status int, kind errorKind, message, budgetName string) {
	type errBody struct {
		Type       string `json:"type"`
		Message    string `json:"message"`
		BudgetName string `json:"budget_name,omitempty"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error errBody `json:"error"`
	}{Error: errBody{Type: string(kind), Message: message, BudgetName: budgetName}})
}

func itoa(n int) string { return strconv.Itoa(n) }

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func joinStrings(parts []string, sep string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total+len(sep)*(len(parts)-1))
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep...)
		}
		out = append(out, p...)
	}
	return string(out)
}
