package security

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the subset of the authoritative store the engine needs:
// durable SecurityEvent persistence and per-agent policy lookup.
type Store interface {
	CreateSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error
	GetAgentPolicy(ctx context.Context, tenantID uuid.UUID, agentID string) (*models.AgentPolicy, error)
}

// Config is the engine's tunable latency budget and kill-switch posture,
// sourced from config.SecurityConfig.
type Config struct {
	DefaultDetectionLevel models.DetectionLevel
	AutoKillEnabled       bool
	AutoKillThreshold     float64
	SyncBudget            time.Duration // aggregate per phase (request or response)
	TotalMiddlewareBudget time.Duration
	AsyncQueueSize        int
}

// Outcome is what ScanRequest/ScanResponse decided after running every
// applicable detector and resolving the winning action.
type Outcome struct {
	Action  models.SecurityAction
	Event   *models.SecurityEvent // nil if nothing fired
	Summary string
}

// StreamSignal is the cancellation handle a live stream registers with
// the engine so an async detector's finding can still terminate it.
type StreamSignal struct {
	kill chan struct{}
	once sync.Once
}

func newStreamSignal() *StreamSignal {
	return &StreamSignal{kill: make(chan struct{})}
}

func (s *StreamSignal) Kill() { s.once.Do(func() { close(s.kill) }) }

func (s *StreamSignal) Killed() <-chan struct{} { return s.kill }

// asyncJob is one unit of work handed to the background worker pool.
type asyncJob struct {
	tenantID uuid.UUID
	agentID  string
	req      *RequestContext
	resp     *ResponseContext
}

// Engine runs the configured sync detectors in-path and async detectors
// off a bounded queue, resolving every finding through the embedded
// policy and persisting a SecurityEvent for whatever fired.
type Engine struct {
	cfg     Config
	policy  *PolicyEngine
	store   Store
	logger  *zap.Logger

	sync  []SyncDetector
	async []AsyncDetector

	baseline BaselineStore

	asyncCh chan asyncJob

	mu      sync.Mutex
	streams map[string]*StreamSignal

	skipped sync.Map // detector name -> count, detectors that blew budget

	feed *EventFeed
}

func NewEngine(cfg Config, policy *PolicyEngine, store Store, baseline BaselineStore, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		policy:   policy,
		store:    store,
		baseline: baseline,
		logger:   logger,
		asyncCh:  make(chan asyncJob, cfg.AsyncQueueSize),
		streams:  make(map[string]*StreamSignal),
		feed:     newEventFeed(),
	}
	return e
}

// Feed returns the engine's live SecurityEvent broadcaster, subscribed to
// by the admin security-events websocket stream.
func (e *Engine) Feed() *EventFeed { return e.feed }

func (e *Engine) RegisterSync(d SyncDetector)   { e.sync = append(e.sync, d) }
func (e *Engine) RegisterAsync(d AsyncDetector) { e.async = append(e.async, d) }

// RegisterStream creates (or returns) the kill signal for a live
// request_id, called by the stream pump before it starts relaying.
func (e *Engine) RegisterStream(requestID string) *StreamSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.streams[requestID]
	if !ok {
		sig = newStreamSignal()
		e.streams[requestID] = sig
	}
	return sig
}

// ReleaseStream drops a completed stream's kill signal.
func (e *Engine) ReleaseStream(requestID string) {
	e.mu.Lock()
	delete(e.streams, requestID)
	e.mu.Unlock()
}

// effectivePolicy is the per-request resolved posture: the tenant default
// unless overridden by a per-agent AgentPolicy row.
type effectivePolicy struct {
	level             models.DetectionLevel
	autoKillEnabled   bool
	autoKillThreshold float64
	disabled          map[string]bool
}

// resolvePolicy returns the effective detection posture for a tenant/agent,
// preferring an AgentPolicy override over the process defaults.
func (e *Engine) resolvePolicy(ctx context.Context, tenantID uuid.UUID, agentID string) effectivePolicy {
	ep := effectivePolicy{
		level:             e.cfg.DefaultDetectionLevel,
		autoKillEnabled:   e.cfg.AutoKillEnabled,
		autoKillThreshold: e.cfg.AutoKillThreshold,
	}
	if agentID == "" {
		return ep
	}
	policy, err := e.store.GetAgentPolicy(ctx, tenantID, agentID)
	if err != nil || policy == nil {
		return ep
	}
	ep.level = policy.DetectionLevel
	ep.autoKillEnabled = policy.AutoKillEnabled
	ep.autoKillThreshold = policy.AutoKillThreshold
	if len(policy.DisabledDetectors) > 0 {
		ep.disabled = make(map[string]bool, len(policy.DisabledDetectors))
		for _, name := range policy.DisabledDetectors {
			ep.disabled[name] = true
		}
	}
	return ep
}

// ScanRequest runs every sync detector against req within the per-phase
// latency budget and returns the winning action.
func (e *Engine) ScanRequest(ctx context.Context, tenantID uuid.UUID, req *RequestContext) Outcome {
	ep := e.resolvePolicy(ctx, tenantID, req.AgentID)
	results := e.runSync(ctx, ep, func(d SyncDetector) []DetectionResult {
		return d.DetectRequest(ctx, req)
	})
	return e.resolve(ctx, tenantID, req.AgentID, req.RequestID, ep, results)
}

// ScanResponse runs every sync detector against resp (a buffered response
// or one SSE chunk) within the per-phase latency budget.
func (e *Engine) ScanResponse(ctx context.Context, tenantID uuid.UUID, resp *ResponseContext) Outcome {
	ep := e.resolvePolicy(ctx, tenantID, resp.AgentID)
	results := e.runSync(ctx, ep, func(d SyncDetector) []DetectionResult {
		return d.DetectResponse(ctx, resp)
	})
	return e.resolve(ctx, tenantID, resp.AgentID, resp.RequestID, ep, results)
}

// runSync invokes call for every registered, non-disabled sync detector, in
// ascending Priority order. The whole phase shares one deadline of
// cfg.SyncBudget, capped at cfg.TotalMiddlewareBudget. A detector that is
// still running at the deadline, is reached after it, or panics is skipped
// for this request and recorded, never failing the request.
func (e *Engine) runSync(ctx context.Context, ep effectivePolicy, call func(SyncDetector) []DetectionResult) []DetectionResult {
	budget := e.cfg.SyncBudget
	if e.cfg.TotalMiddlewareBudget > 0 && e.cfg.TotalMiddlewareBudget < budget {
		budget = e.cfg.TotalMiddlewareBudget
	}
	deadline := time.Now().Add(budget)
	var out []DetectionResult

	detectors := make([]SyncDetector, len(e.sync))
	copy(detectors, e.sync)
	sort.SliceStable(detectors, func(i, j int) bool { return detectors[i].Priority() < detectors[j].Priority() })

	for _, d := range detectors {
		if ep.disabled[d.Name()] {
			continue
		}
		if !time.Now().Before(deadline) {
			e.recordSkip(d.Name())
			continue
		}
		res, ok := e.runOne(d, call, time.Until(deadline))
		if !ok {
			e.recordSkip(d.Name())
			continue
		}
		out = append(out, res...)
	}
	return out
}

// runOne invokes one detector, waiting at most timeout, so a single slow or
// panicking detector never blocks the others or the request.
func (e *Engine) runOne(d SyncDetector, call func(SyncDetector) []DetectionResult, timeout time.Duration) ([]DetectionResult, bool) {
	type result struct {
		res []DetectionResult
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("detector_error: sync detector panicked", zap.String("detector", d.Name()), zap.Any("recover", r))
				ch <- result{}
			}
		}()
		ch <- result{res: call(d)}
	}()

	select {
	case r := <-ch:
		return r.res, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (e *Engine) recordSkip(name string) {
	v, _ := e.skipped.LoadOrStore(name, new(int64))
	counter := v.(*int64)
	*counter++
	e.logger.Warn("security detector skipped: exceeded latency budget", zap.String("detector", name))
}

// resolve picks the highest-precedence action across every DetectionResult
// via the policy engine, persists a SecurityEvent for the winner, and
// returns the Outcome the orchestrator acts on.
func (e *Engine) resolve(ctx context.Context, tenantID uuid.UUID, agentID, requestID string, ep effectivePolicy, results []DetectionResult) Outcome {
	if len(results) == 0 {
		return Outcome{Action: models.SecurityActionLog}
	}

	var winner DetectionResult
	var winnerAction models.SecurityAction

	for _, r := range results {
		eligible := ep.autoKillEnabled && r.Confidence >= ep.autoKillThreshold
		action, err := e.policy.Decide(ctx, r, ep.level, eligible)
		if err != nil {
			e.logger.Error("security policy evaluation failed, defaulting to log", zap.Error(err))
			action = models.SecurityActionLog
		}
		if winnerAction == "" || models.HigherPrecedence(action, winnerAction) {
			winnerAction = action
			winner = r
		}
	}

	enforced := winnerAction != models.SecurityActionLog
	ev := &models.SecurityEvent{
		TenantID:   tenantID,
		AgentID:    agentID,
		RequestID:  requestID,
		Detector:   winner.Detector,
		Score:      winner.Confidence,
		Level:      ep.level,
		Action:     winnerAction,
		Enforced:   enforced,
		DetectedAt: time.Now(),
	}
	if err := e.store.CreateSecurityEvent(ctx, ev); err != nil {
		e.logger.Error("failed to persist security event", zap.Error(err))
	}
	e.feed.publish(ev)

	return Outcome{Action: winnerAction, Event: ev, Summary: winner.Description}
}

// SubmitAsync enqueues a background analysis job; if the queue is full the
// job is dropped (bounded backpressure, never blocks the hot path).
func (e *Engine) SubmitAsync(tenantID uuid.UUID, agentID string, req *RequestContext, resp *ResponseContext) {
	job := asyncJob{tenantID: tenantID, agentID: agentID, req: req, resp: resp}
	select {
	case e.asyncCh <- job:
	default:
		e.logger.Warn("security async queue full, dropping job", zap.String("tenant_id", tenantID.String()))
	}
}

// RunAsyncWorker drains the async queue until ctx is cancelled. Meant to
// be started once per process as a background goroutine.
func (e *Engine) RunAsyncWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.asyncCh:
			e.processAsyncJob(ctx, job)
		}
	}
}

func (e *Engine) processAsyncJob(ctx context.Context, job asyncJob) {
	var all []DetectionResult
	for _, d := range e.async {
		all = append(all, d.Analyze(ctx, e.baseline, job.req, job.resp)...)
	}
	if len(all) == 0 {
		return
	}

	requestID := ""
	if job.req != nil {
		requestID = job.req.RequestID
	} else if job.resp != nil {
		requestID = job.resp.RequestID
	}

	ep := e.resolvePolicy(ctx, job.tenantID, job.agentID)
	outcome := e.resolve(ctx, job.tenantID, job.agentID, requestID, ep, all)
	if outcome.Action != models.SecurityActionKill {
		return
	}

	e.mu.Lock()
	sig, ok := e.streams[requestID]
	e.mu.Unlock()
	if ok {
		sig.Kill()
	}
}
