// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/app"
	"github.com/unclebandit/phishsim-backend/internal/config"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/service"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatalf("logger: %v", err)
	}
	if cfg.AMQPURL == "" {
		logger.Fatal("❌ AMQP_URL is required for the standalone worker")
	}

	stores, storeCloser, err := app.OpenStores(cfg)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	defer storeCloser.Close()

	dispatcher, err := app.NewDispatcher(cfg, stores)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}

	q, queueCloser, _, err := app.OpenQueue(cfg)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	defer queueCloser.Close()

	worker := service.NewWorker(dispatcher, jobTimeout(cfg))
	if err := worker.Start(q, cfg.DispatchQueue); err != nil {
		logger.Fatalf("❌ start worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("👷 Worker running, waiting for jobs on %q", cfg.DispatchQueue)
	<-ctx.Done()
	logger.Info("🛑 Worker stopping")
}

// jobTimeout bounds one campaign dispatch. It stays inside the dispatch
// lease so a stuck job is abandoned before another worker may take over.
func jobTimeout(cfg *config.Config) time.Duration {
	if cfg.DispatchLease <= time.Minute {
		return cfg.DispatchLease
	}
	return cfg.DispatchLease - time.Minute
}
