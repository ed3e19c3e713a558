package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"owl-notify/common/logger"
	"owl-notify/internal/config"
	"owl-notify/internal/service"

	"go.uber.org/zap"

	// topic drivers selectable through QUEUE_TOPIC_URL
	_ "gocloud.dev/pubsub/kafkapubsub"
	_ "gocloud.dev/pubsub/mempubsub"
	_ "gocloud.dev/pubsub/natspubsub"
	_ "gocloud.dev/pubsub/rabbitpubsub"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	// 1. config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "owl-notify")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. service
	notifyService, err := service.NewNotifyService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create notify service", zap.Error(err))
	}
	defer notifyService.Stop()

	if err := notifyService.Start(ctx); err != nil {
		log.Error("Service error", zap.Error(err))
		notifyService.Stop()
		log.Sync()
		os.Exit(1)
	}

	log.Info("Notify service stopped")
}
