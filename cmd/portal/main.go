package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/ashaassist/portal/api"
	"github.com/ashaassist/portal/backend"
	"github.com/ashaassist/portal/config"
	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/flow"
	"github.com/ashaassist/portal/logger"
	"github.com/ashaassist/portal/persistence"
	"github.com/ashaassist/portal/session"
	"github.com/ashaassist/portal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting portal shell",
		zap.Int("port", cfg.Port),
		zap.String("api", cfg.APIBaseURL),
		zap.String("store", cfg.StoreType),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := persistence.Open(cfg.StoreType, cfg.StoreDSN)
	if err != nil {
		logger.Log.Fatal("failed to open session store", zap.Error(err))
	}
	defer store.Close()

	client := backend.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)

	// Federated sign-in is optional.
	var (
		federation domain.IdentityFederation
		receiver   *flow.CallbackReceiver
	)
	if provider, ok := cfg.OIDC(); ok {
		receiver = flow.NewCallbackReceiver(func(authURL string) {
			logger.Log.Info("provider sign-in waiting for browser", zap.String("url", authURL))
		})
		oidcFed, err := flow.NewOIDCFederation(ctx, provider, receiver.Authorize)
		if err != nil {
			logger.Log.Error("failed to initialize OIDC federation", zap.Error(err))
			receiver = nil
		} else {
			federation = oidcFed
		}
	}

	sm := session.NewManager(client, federation, store,
		session.WithRevalidation(cfg.RevalidateOnBootstrap),
		session.WithTelemetry(telemetry.NewProvider()),
	)
	sm.Subscribe(func(prev, next session.State) {
		logger.Log.Debug("session changed",
			zap.Stringer("from", prev.Status),
			zap.Stringer("to", next.Status),
		)
	})
	if err := sm.Bootstrap(ctx); err != nil {
		logger.Log.Fatal("failed to restore session", zap.Error(err))
	}

	h := api.NewHandler(sm, receiver)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
