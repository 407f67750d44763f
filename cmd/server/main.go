package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/stackops/stackops/internal/adapter/ai"
	"github.com/stackops/stackops/internal/adapter/graph"
	httpadapter "github.com/stackops/stackops/internal/adapter/http"
	"github.com/stackops/stackops/internal/adapter/persistence"
	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/guardrail"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/infra/ratelimit"
	"github.com/stackops/stackops/internal/infra/telemetry"
	"github.com/stackops/stackops/internal/planschema"
	"github.com/stackops/stackops/internal/ports"
	"github.com/stackops/stackops/internal/usecase"
)

const serviceVersion = "1.0.0"

type store struct {
	intents   ports.IntentRepository
	audit     ports.AuditRepository
	approvals ports.ApprovalRepository
	close     func() error
}

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"version":     serviceVersion,
		"env":         cfg.Server.Environment,
		"ai_provider": cfg.AI.Provider,
		"store":       cfg.Database.Driver,
		"dry_run":     cfg.Graph.DryRun,
	})

	// Initialize telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize telemetry", err, nil)
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	metrics, err := telemetry.NewPipelineMetrics(tel.Meter())
	if err != nil {
		structuredLogger.Error(ctx, "Failed to create pipeline metrics", err, nil)
		log.Fatalf("Failed to create pipeline metrics: %v", err)
	}

	// Open the intent store
	st, err := openStore(ctx, cfg, structuredLogger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.close()

	// Load guardrails eagerly so a broken policy file fails at startup
	guard := guardrail.NewEvaluator(guardrail.NewFileSource(cfg.Guardrails.Path))
	policy, err := guard.Policy(ctx)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to load guardrail policy", err, map[string]interface{}{
			"path": cfg.Guardrails.Path,
		})
		log.Fatalf("Failed to load guardrail policy: %v", err)
	}
	structuredLogger.Info(ctx, "Guardrail policy loaded", map[string]interface{}{
		"path":                 cfg.Guardrails.Path,
		"tools_allowed":        len(policy.ToolsAllowed),
		"protected_principals": len(policy.ProtectedPrincipals),
	})

	// Initialize the oracle
	oracle, err := ai.NewOracle(cfg.ToOracleConfig())
	if err != nil {
		log.Fatalf("Failed to initialize oracle: %v", err)
	}

	// Initialize the directory actuator
	var actuator ports.Actuator
	if cfg.Graph.DryRun {
		actuator = graph.NewDryRunActuator(structuredLogger)
		structuredLogger.Warn(ctx, "Directory actuator in dry-run mode", nil)
	} else {
		actuator, err = graph.NewActuator(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			BaseURL:      cfg.Graph.BaseURL,
			Timeout:      cfg.Graph.Timeout,
		}, structuredLogger)
		if err != nil {
			log.Fatalf("Failed to initialize directory actuator: %v", err)
		}
	}

	// Initialize rate limiting
	limiter, err := ratelimit.New(ctx, ratelimit.Config{
		Enabled:       cfg.RateLimit.Enabled,
		Backend:       cfg.RateLimit.Backend,
		Requests:      cfg.RateLimit.Requests,
		Window:        cfg.RateLimit.Window,
		RedisURL:      cfg.Redis.URL,
		RedisPoolSize: cfg.Redis.PoolSize,
	}, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize rate limiting", err, nil)
		log.Fatalf("Failed to initialize rate limiting: %v", err)
	}
	defer limiter.Close()

	// Assemble the pipeline
	planner := usecase.NewPlanner(oracle, planschema.MustNew(), structuredLogger, metrics)
	translator := usecase.NewTranslator(cfg.Graph.DefaultUsageLocation, cfg.Graph.BaseURL)
	executor := usecase.NewExecutor(actuator, translator, structuredLogger, metrics)
	intentUseCase := usecase.NewIntentUseCase(
		st.intents,
		st.audit,
		st.approvals,
		planner,
		guard,
		executor,
		limiter,
		structuredLogger,
		metrics,
	)

	healthChecks := map[string]ports.HealthChecker{}
	if checker, ok := oracle.(ports.HealthChecker); ok {
		healthChecks["oracle"] = checker
	}

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:            cfg.Address(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		JWTSecret:       cfg.Security.JWTSecret,
		RequireAuth:     cfg.Security.RequireAuth,
		DefaultApprover: cfg.Security.DefaultApprover,
		HealthChecks:    healthChecks,
	}, intentUseCase, structuredLogger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			structuredLogger.Error(ctx, "HTTP server failed", err, nil)
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Failed to flush telemetry", err, nil)
	}

	structuredLogger.Info(ctx, "Server exited", nil)
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn(ctx, "Using in-memory store; intents are lost on restart", nil)
		mem := persistence.NewMemoryStore()
		return &store{
			intents:   mem.Intents(),
			audit:     mem.Audit(),
			approvals: mem.Approvals(),
			close:     func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "Failed to connect to database", err, nil)
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error(ctx, "Failed to ping database", err, nil)
		db.Close()
		return nil, err
	}
	log.Info(ctx, "Database connection established", map[string]interface{}{
		"max_connections": cfg.Database.MaxConnections,
	})

	return &store{
		intents:   persistence.NewPostgresIntentRepository(db),
		audit:     persistence.NewPostgresAuditRepository(db),
		approvals: persistence.NewPostgresApprovalRepository(db),
		close:     db.Close,
	}, nil
}
