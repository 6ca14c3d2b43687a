package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/paystream/relay/config"
	"github.com/paystream/relay/logging"
	"github.com/paystream/relay/routes"
	"github.com/paystream/relay/store"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("gateway startup failed: %v", err)
	}

	logger, err := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("gateway startup failed: %v", err)
	}
	defer logging.Sync(logger)

	st, err := connectStore(cfg.StoreURL, logger)
	if err != nil {
		logger.Fatal("store unreachable", zap.Error(err))
	}
	if err := st.InitSummary(context.Background()); err != nil {
		logger.Warn("summary init failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	routes.RegisterPaymentRoutes(app, &routes.GatewayConfig{
		Store:    st,
		Instance: cfg.Instance,
		LockTTL:  cfg.LockTTL(),
		Log:      logger,
	})

	go func() {
		logger.Info("gateway listening", zap.Int("port", cfg.Port), zap.String("instance", cfg.Instance))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	st.Close()
}

// connectStore dials the shared store with bounded retries so a slow Redis
// at boot doesn't flap the gateway, but a missing one still fails fast.
func connectStore(connString string, logger *zap.Logger) (store.PaymentStore, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		st, err := store.Connect(connString)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = st.Ping(ctx)
			cancel()
			if err == nil {
				logger.Info("connected to store", zap.Int("attempt", attempt))
				return st, nil
			}
			st.Close()
		}
		lastErr = err
		logger.Warn("store connection failed", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("store unreachable after 5 attempts: %w", lastErr)
}
