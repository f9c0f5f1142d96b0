package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BudgetHandler is the CRUD surface over the Budget Engine's budget
// table. The engine's Evaluate reads through its cached snapshot, so a
// write made here reaches allow/downgrade/block decisions on the
// tenant's next snapshot refresh, not immediately; Settle reads the
// table directly.
type BudgetHandler struct {
	baseHandler
	store *store.Store
}

func NewBudgetHandler(logger *zap.Logger, st *store.Store) *BudgetHandler {
	return &BudgetHandler{baseHandler: baseHandler{logger: logger}, store: st}
}

func (h *BudgetHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}
	budgets, err := h.store.ListActiveBudgets(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("admin: list budgets failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to list budgets")
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"budgets": budgets})
}

type budgetRequest struct {
	TenantID        uuid.UUID                 `json:"tenant_id"`
	Name            string                    `json:"name"`
	Scope           models.BudgetScope        `json:"scope"`
	ScopeKey        string                    `json:"scope_key"`
	Period          models.BudgetPeriod       `json:"period"`
	LimitMicros     models.Micros             `json:"limit_micros"`
	ResetAt         time.Time                 `json:"reset_at"`
	ActionOnBreach  models.BudgetBreachAction `json:"action_on_breach"`
	DowngradeModel  string                    `json:"downgrade_model"`
	WarnPercent     float64                   `json:"warn_percent"`
	CriticalPercent float64                   `json:"critical_percent"`
}

func (h *BudgetHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	b := &models.Budget{
		TenantID:        req.TenantID,
		Name:            req.Name,
		Scope:           req.Scope,
		ScopeKey:        req.ScopeKey,
		Period:          req.Period,
		LimitMicros:     req.LimitMicros,
		ResetAt:         req.ResetAt,
		ActionOnBreach:  req.ActionOnBreach,
		DowngradeModel:  req.DowngradeModel,
		WarnPercent:     req.WarnPercent,
		CriticalPercent: req.CriticalPercent,
		Active:          true,
	}
	if b.WarnPercent == 0 {
		b.WarnPercent = 80
	}
	if b.CriticalPercent == 0 {
		b.CriticalPercent = 100
	}
	if err := h.store.CreateBudget(r.Context(), b); err != nil {
		h.logger.Error("admin: create budget failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to create budget")
		return
	}
	h.sendJSON(w, http.StatusCreated, b)
}
