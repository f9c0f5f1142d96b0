package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/core/routing"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// RoutingHandler is the CRUD surface over the Smart Router's rule
// table, plus a dry-run endpoint that calls the router's own matching
// logic so a simulated decision can never drift from how a live
// request would actually route.
type RoutingHandler struct {
	baseHandler
	store  *store.Store
	router *routing.Router
}

func NewRoutingHandler(logger *zap.Logger, st *store.Store, router *routing.Router) *RoutingHandler {
	return &RoutingHandler{baseHandler: baseHandler{logger: logger}, store: st, router: router}
}

func (h *RoutingHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}
	rules, err := h.store.ListActiveRoutingRules(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("admin: list routing rules failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to list routing rules")
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// ruleRequest is the wire shape for creating/updating a rule; it omits
// the statistics fields RecordRuleApplied owns.
type ruleRequest struct {
	TenantID         uuid.UUID               `json:"tenant_id"`
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	Priority         int                     `json:"priority"`
	Condition        models.RoutingCondition `json:"condition"`
	TargetProvider   string                  `json:"target_provider"`
	TargetModel      string                  `json:"target_model"`
	FallbackProvider string                  `json:"fallback_provider"`
	FallbackModel    string                  `json:"fallback_model"`
	Active           *bool                   `json:"active"`
}

func (req ruleRequest) toModel() *models.RoutingRule {
	rule := &models.RoutingRule{
		TenantID:         req.TenantID,
		Name:             req.Name,
		Description:      req.Description,
		Priority:         req.Priority,
		Condition:        datatypes.NewJSONType(req.Condition),
		TargetProvider:   req.TargetProvider,
		TargetModel:      req.TargetModel,
		FallbackProvider: req.FallbackProvider,
		FallbackModel:    req.FallbackModel,
		Active:           true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	return rule
}

func (h *RoutingHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	rule := req.toModel()
	if err := h.store.CreateRoutingRule(r.Context(), rule); err != nil {
		h.logger.Error("admin: create routing rule failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to create routing rule")
		return
	}
	h.sendJSON(w, http.StatusCreated, rule)
}

func (h *RoutingHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	rule := req.toModel()
	rule.ID = id
	if err := h.store.UpdateRoutingRule(r.Context(), rule); err != nil {
		h.logger.Error("admin: update routing rule failed", zap.String("rule_id", id.String()), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to update routing rule")
		return
	}
	h.sendJSON(w, http.StatusOK, rule)
}

func (h *RoutingHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := h.store.DeleteRoutingRule(r.Context(), id); err != nil {
		h.logger.Error("admin: delete routing rule failed", zap.String("rule_id", id.String()), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to delete routing rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type simulateRequest struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	Model            string    `json:"model"`
	MessageCount     int       `json:"message_count"`
	ConcatenatedText string    `json:"concatenated_text"`
	EstimatedTokens  int       `json:"estimated_tokens"`
	AgentID          string    `json:"agent_id"`
}

// Simulate dry-runs the live Smart Router's matching logic against a
// hypothetical request, without recording rule-application statistics
// or actually routing anything.
func (h *RoutingHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	decision, err := h.router.Simulate(r.Context(), req.TenantID, routing.Request{
		Model:            req.Model,
		MessageCount:     req.MessageCount,
		ConcatenatedText: req.ConcatenatedText,
		EstimatedTokens:  req.EstimatedTokens,
		AgentID:          req.AgentID,
		Now:              time.Now(),
	})
	if err != nil {
		h.logger.Error("admin: routing simulate failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "simulation failed")
		return
	}
	h.sendJSON(w, http.StatusOK, decision)
}
