package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/marketplace-settlement/internal/checkout"
	"github.com/jcmexdev/marketplace-settlement/internal/gateway"
	"github.com/jcmexdev/marketplace-settlement/internal/pkg/cache"
	"github.com/jcmexdev/marketplace-settlement/internal/pkg/config"
	"github.com/jcmexdev/marketplace-settlement/internal/pkg/telemetry"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/app"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/infra/httpx"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/infra/sqlite"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.OTelServiceName)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	active, err := gateway.ParseProvider(cfg.ActiveProvider)
	if err != nil {
		slog.Error("invalid payment provider", "provider", cfg.ActiveProvider, "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	resultCache := cache.NewRedisCache(cfg.RedisAddr, "settlement")

	paystack := gateway.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	flutterwave := gateway.NewFlutterwaveClient(cfg.FlutterwaveBaseURL, cfg.FlutterwaveSecret)
	verifiers := map[gateway.Provider]gateway.Verifier{
		gateway.ProviderPaystack:    paystack,
		gateway.ProviderFlutterwave: flutterwave,
	}

	quotes := checkout.NewBuilder(store)
	settlements := app.NewSettlementService(store, quotes, verifiers[active], active, cfg.Currency, resultCache)
	installments := app.NewInstallmentService(store, verifiers, active, cfg.Currency)

	handler := httpx.NewHandler(settlements, installments, quotes, store)
	router := httpx.NewRouter(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "settlement-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("settlement service running", "addr", cfg.HTTPAddr, "provider", active)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
}
