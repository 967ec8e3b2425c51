package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/chain"
	"github.com/pixelmint/credit-engine/internal/compensate"
	"github.com/pixelmint/credit-engine/internal/config"
	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/generation"
	"github.com/pixelmint/credit-engine/internal/ledger"
	"github.com/pixelmint/credit-engine/internal/payment"
	"github.com/pixelmint/credit-engine/internal/provider"
	"github.com/pixelmint/credit-engine/internal/quota"
	"github.com/pixelmint/credit-engine/internal/server"
	"github.com/pixelmint/credit-engine/internal/tier"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain client (operator key + credit ledger ABI binding) ───────────────
	onchain, err := chain.NewLedgerClient(cfg)
	if err != nil {
		log.Fatal("chain client init failed", zap.Error(err))
	}

	// ── Upstream clients ──────────────────────────────────────────────────────
	providerClient := provider.NewHTTPClient(cfg.Provider.APIURL, cfg.Provider.APIKey)
	gateway := payment.NewCreemClient(cfg.Payment.APIURL, cfg.Payment.APIKey)

	// ── Core services ─────────────────────────────────────────────────────────
	resolver := credit.NewResolver(onchain, tier.PackageIDs(), log)
	reserver := credit.NewService(resolver, onchain, rdb, log)
	usage := ledger.New(rdb)
	refunder := compensate.NewHandler(rdb, onchain, usage, log)
	poller := provider.NewPoller(
		providerClient,
		time.Duration(cfg.Engine.PollIntervalSec)*time.Second,
		time.Duration(cfg.Engine.PollBufferSec)*time.Second,
		log,
	)
	orchestrator := generation.NewOrchestrator(rdb, providerClient, poller, gateway, refunder, usage, log)
	requestQuota := quota.NewCounter(rdb, 24*time.Hour, cfg.Engine.DailyRequestLimit)

	// ── Goroutines ────────────────────────────────────────────────────────────
	// Recovery must finish claiming stuck refunds before the consumer can
	// race it for the same reservations.
	compensate.RecoverStuckRefunds(ctx, rdb, refunder, log)
	go compensate.RunConsumer(ctx, rdb, refunder, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	server.NewHandler(
		reserver,
		orchestrator,
		resolver,
		usage,
		requestQuota,
		rdb,
		cfg.Payment.WebhookSecret,
		log,
	).Register(r, api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
