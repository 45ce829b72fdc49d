// Riskscore - rule-based transaction risk scoring service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/riskscore/internal/api"
	"github.com/opensource-finance/riskscore/internal/audit"
	"github.com/opensource-finance/riskscore/internal/bus"
	"github.com/opensource-finance/riskscore/internal/cache"
	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/config"
	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/history"
	"github.com/opensource-finance/riskscore/internal/metrics"
	"github.com/opensource-finance/riskscore/internal/repository"
	"github.com/opensource-finance/riskscore/internal/rules"
	"github.com/opensource-finance/riskscore/internal/scoring"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		setupLogger(domain.LoggingConfig{})
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging)

	slog.Info("starting riskscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"resilience_mode", cfg.Risk.ResilienceMode,
		"thresholds", fmt.Sprintf("%d/%d/%d", cfg.Risk.Thresholds.Medium, cfg.Risk.Thresholds.High, cfg.Risk.Thresholds.Critical),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("riskscore stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("riskscore shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "history_ttl", cfg.Cache.HistoryTTL)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m := metrics.New()
	breakers := circuit.NewRegistry(circuit.SettingsFrom(cfg.Breaker),
		circuit.WithTransitionHook(m.CircuitTransition),
	)

	historySvc := history.NewService(repo, cacheImpl, cfg.Cache.HistoryTTL)

	expressions, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load expression rules: %w", err)
	}

	reg, err := rules.Build(rules.BuildOptions{
		Risk:        cfg.Risk,
		History:     historySvc,
		Breakers:    breakers,
		Expressions: expressions,
		OnFallback:  m.RuleFallback,
	})
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}
	slog.Info("rules registered", "count", reg.Len(), "reason_codes", reg.ReasonCodes())

	engine, err := scoring.NewEngine(reg, cfg.Risk.Thresholds,
		scoring.WithSignalObserver(m.ObserveSignal),
	)
	if err != nil {
		return fmt.Errorf("initialize scoring engine: %w", err)
	}

	recorder := audit.NewRecorder(repo,
		audit.WithEnabled(cfg.Risk.AuditEnabled),
		audit.WithEventBus(busImpl),
		audit.WithMetrics(m),
	)
	slog.Info("audit recorder initialized", "enabled", recorder.Enabled())

	alerts, err := audit.WatchAlerts(ctx, busImpl, m)
	if err != nil {
		return fmt.Errorf("start alert watcher: %w", err)
	}
	defer alerts.Stop()

	svcOpts := []scoring.ServiceOption{
		scoring.WithMetrics(m),
		scoring.WithAuditTimeout(cfg.Risk.AuditTimeout),
	}
	if cfg.Risk.ResilienceMode == domain.ResilienceEngine {
		svcOpts = append(svcOpts, scoring.WithEngineBreaker(breakers.Get(scoring.EngineDependency)))
	}
	svc := scoring.NewService(engine, recorder, svcOpts...)
	slog.Info("scoring service initialized", "resilience_mode", svc.Mode())

	srv := api.NewServer(cfg.Server, api.Deps{
		Scorer:   svc,
		Scores:   repo,
		Breakers: breakers,
		Metrics:  m.Handler(),
		Checks: map[string]api.Pinger{
			"database": repo,
			"cache":    cacheImpl,
			"eventbus": busImpl,
		},
	}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("riskscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv(config.EnvPrefix+"DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
