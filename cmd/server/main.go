package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amerfu/pllm-gateway/internal/api"
	"github.com/amerfu/pllm-gateway/internal/auth"
	"github.com/amerfu/pllm-gateway/internal/cache"
	"github.com/amerfu/pllm-gateway/internal/config"
	"github.com/amerfu/pllm-gateway/internal/core/budget"
	"github.com/amerfu/pllm-gateway/internal/core/cost"
	"github.com/amerfu/pllm-gateway/internal/core/credential"
	"github.com/amerfu/pllm-gateway/internal/core/ratelimit"
	"github.com/amerfu/pllm-gateway/internal/core/routing"
	"github.com/amerfu/pllm-gateway/internal/handlers/admin"
	"github.com/amerfu/pllm-gateway/internal/logger"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/pipeline"
	"github.com/amerfu/pllm-gateway/internal/providers"
	"github.com/amerfu/pllm-gateway/internal/services/security"
	"github.com/amerfu/pllm-gateway/internal/services/streampump"
	"github.com/amerfu/pllm-gateway/internal/services/usagelog"
	"github.com/amerfu/pllm-gateway/internal/store"
	"github.com/amerfu/pllm-gateway/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title pllm-gateway
// @version 1.0
// @description Authenticating, cost-controlling, policy-enforcing reverse proxy for Anthropic, OpenAI, and Google LLM APIs.

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := store.Open(&store.Config{
		DSN:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("failed to open authoritative store", zap.Error(err))
	}
	defer db.Close()

	redisAddr := strings.TrimPrefix(cfg.Redis.URL, "redis://")
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to reach shared key-value store", zap.Error(err))
	}
	defer redisClient.Close()

	kv := cache.NewRedis(redisClient, log)
	snapshots, err := cache.NewSnapshots(10_000)
	if err != nil {
		log.Fatal("failed to build in-process snapshot cache", zap.Error(err))
	}

	credentials := credential.NewStore(db, snapshots, cfg.Auth.APIKeySalt, cfg.Auth.CredentialCacheTTL, log)
	limiter := ratelimit.NewLimiter(redisClient, log)
	budgets := budget.NewEngine(db, snapshots, cost.PriceBook{}, cfg.Budget.SnapshotTTL, uint64(cfg.Budget.SettlementMaxRetries), log)
	router := routing.NewRouter(db, cost.PriceBook{}, log)
	calculator := cost.NewCalculator(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := security.NewPolicyEngine(ctx)
	if err != nil {
		log.Fatal("failed to compile security policy", zap.Error(err))
	}
	securityEngine := security.NewEngine(security.Config{
		DefaultDetectionLevel: models.DetectionLevel(cfg.Security.DefaultDetectionLevel),
		AutoKillEnabled:       cfg.Security.AutoKillEnabled,
		AutoKillThreshold:     cfg.Security.AutoKillThreshold,
		SyncBudget:            cfg.Security.SyncDetectorBudget,
		TotalMiddlewareBudget: cfg.Security.TotalMiddlewareBudget,
		AsyncQueueSize:        cfg.Security.AsyncQueueSize,
	}, policy, db, db, log)

	securityEngine.RegisterSync(security.NewPromptInjectionDetector())
	securityEngine.RegisterSync(security.NewCredentialExposureDetector())
	securityEngine.RegisterSync(security.NewDataExfiltrationDetector())
	securityEngine.RegisterSync(security.NewRunawayLoopDetector(kv))
	securityEngine.RegisterSync(security.NewToolAbuseDetector())
	securityEngine.RegisterAsync(security.NewAnomalyDetector())
	go securityEngine.RunAsyncWorker(ctx)

	breakers := circuitbreaker.NewManager(5, 30*time.Second)
	dispatcher := providers.NewDispatcher(cfg.Server.UpstreamTimeout, breakers)
	pump := streampump.New(securityEngine, log)

	usageLog := usagelog.New(db, log, 10_000, 100, time.Second)
	go usageLog.Run(ctx)

	providerSet := map[providers.Name]providers.Provider{
		providers.Anthropic: providers.NewAnthropicProvider(cfg.Providers.AnthropicAPIKey, cfg.Providers.AnthropicBaseURL),
		providers.OpenAI:    providers.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIBaseURL),
		providers.Google:    providers.NewGoogleProvider(cfg.Providers.GoogleAPIKey, cfg.Providers.GoogleBaseURL),
	}

	orchestrator := pipeline.New(pipeline.Config{
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RateLimitRequests: cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:   cfg.RateLimit.Window,
		UpstreamTimeout:   cfg.Server.UpstreamTimeout,
		StreamIdleTimeout: cfg.Server.StreamIdleTimeout,
	}, credentials, limiter, securityEngine, budgets, router, calculator, dispatcher, pump, usageLog, providerSet, log)

	var adminHandlers *api.AdminHandlers
	if cfg.Auth.AdminJWTSecret != "" {
		adminHandlers = &api.AdminHandlers{
			Auth:     auth.NewAdminAuth(cfg.Auth.AdminJWTSecret),
			Routing:  admin.NewRoutingHandler(log, db, router),
			Budgets:  admin.NewBudgetHandler(log, db),
			Security: admin.NewSecurityStreamHandler(log, securityEngine.Feed()),
		}
	} else {
		log.Warn("auth.admin_jwt_secret not set, /admin operator surface disabled")
	}

	handler := api.NewRouter(cfg, orchestrator, kv, db, log, adminHandlers)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("pllm-gateway starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
}
