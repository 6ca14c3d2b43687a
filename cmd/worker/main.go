package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/paystream/relay/config"
	"github.com/paystream/relay/journal"
	"github.com/paystream/relay/logging"
	"github.com/paystream/relay/publish"
	"github.com/paystream/relay/worker"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("worker startup failed: %v", err)
	}

	logger, err := logging.New("worker", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("worker startup failed: %v", err)
	}
	defer logging.Sync(logger)

	j, err := journal.Create(cfg.JournalURL)
	if err != nil {
		logger.Fatal("journal setup failed", zap.Error(err))
	}
	pub, err := publish.Create(cfg.PubSubURL)
	if err != nil {
		logger.Fatal("publisher setup failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	err = worker.New(cfg, logger, j, pub).Run(ctx)

	pub.Close()
	j.Close(context.Background())

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker exited", zap.Error(err))
	}
	logger.Info("worker stopped")
}
