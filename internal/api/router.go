// Package api mounts the inbound proxy surface: the three provider
// passthrough routes the Pipeline Orchestrator drives, liveness and
// readiness checks, a Prometheus scrape endpoint, and the thin /admin
// operator surface (routing-rule and budget CRUD, a routing dry-run
// endpoint, and the live security-events feed) behind admin-token auth.
// The full tenant-management dashboard and compliance reporting still
// live in the separate management service the spec treats as an
// external collaborator — /admin here is deliberately thin.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/auth"
	"github.com/amerfu/pllm-gateway/internal/config"
	"github.com/amerfu/pllm-gateway/internal/handlers/admin"
	gatewaymiddleware "github.com/amerfu/pllm-gateway/internal/middleware"
	"github.com/amerfu/pllm-gateway/internal/pipeline"
	"github.com/amerfu/pllm-gateway/internal/providers"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AdminHandlers bundles the operator-surface dependencies NewRouter
// mounts behind admin-token auth. A nil AdminAuth leaves the surface
// unmounted entirely, so deployments that don't configure an admin
// secret never expose it.
type AdminHandlers struct {
	Auth     *auth.AdminAuth
	Routing  *admin.RoutingHandler
	Budgets  *admin.BudgetHandler
	Security *admin.SecurityStreamHandler
}

// Pinger is the narrow health-check surface the readiness route needs
// from each backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBHealth is the narrow health-check surface the authoritative store
// exposes; kept separate from Pinger since it has no context argument.
type DBHealth interface {
	IsHealthy() bool
}

// NewRouter builds the full HTTP surface. orchestrator drives every proxy
// request; redisHealth and db back the readiness probe. admin may be nil
// to leave the operator surface unmounted.
func NewRouter(cfg *config.Config, orchestrator *pipeline.Orchestrator, redisHealth Pinger, db DBHealth, logger *zap.Logger, adminHandlers *AdminHandlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(zapRequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(gatewaymiddleware.Metrics())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := struct {
			Redis bool `json:"redis"`
			DB    bool `json:"database"`
		}{}
		status.Redis = redisHealth == nil || redisHealth.Ping(ctx) == nil
		status.DB = db == nil || db.IsHealthy()

		body, _ := json.Marshal(status)
		if !status.Redis || !status.DB {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write(body)
	})

	r.Post("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		orchestrator.Handle(w, r, providers.Anthropic)
	})
	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		orchestrator.Handle(w, r, providers.OpenAI)
	})
	r.Post("/v1/models/{model}:generateContent", func(w http.ResponseWriter, r *http.Request) {
		orchestrator.Handle(w, r, providers.Google)
	})
	r.Post("/v1/models/{model}:streamGenerateContent", func(w http.ResponseWriter, r *http.Request) {
		orchestrator.Handle(w, r, providers.Google)
	})

	if adminHandlers != nil && adminHandlers.Auth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminHandlers.Auth.Middleware)

			r.Get("/routing/rules", adminHandlers.Routing.ListRules)
			r.Post("/routing/rules", adminHandlers.Routing.CreateRule)
			r.Put("/routing/rules/{id}", adminHandlers.Routing.UpdateRule)
			r.Delete("/routing/rules/{id}", adminHandlers.Routing.DeleteRule)
			r.Post("/routing/simulate", adminHandlers.Routing.Simulate)

			r.Get("/budgets", adminHandlers.Budgets.ListBudgets)
			r.Post("/budgets", adminHandlers.Budgets.CreateBudget)

			r.Get("/security/events/stream", adminHandlers.Security.Stream)
		})
	}

	return r
}

// zapRequestLogger is a minimal chi middleware logging each request's
// method, path, status, and latency through the shared zap logger,
// replacing chi's default stdlib logger the way the rest of the stack
// replaces stdlib logging with zap.
func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
