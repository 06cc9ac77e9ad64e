// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/app"
	"github.com/unclebandit/phishsim-backend/internal/config"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/queue"
	"github.com/unclebandit/phishsim-backend/internal/service"
)

func main() {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatalf("logger: %v", err)
	}
	if !envLoaded {
		logger.Warn("⚠️ No .env file found, relying on OS environment variables")
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

	q, queueCloser, inProcess, err := app.OpenQueue(cfg)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	defer queueCloser.Close()

	// Without a broker the API process consumes its own dispatch jobs.
	if inProcess {
		worker := service.NewWorker(dispatcher, 0)
		if err := worker.Start(q, cfg.DispatchQueue); err != nil {
			logger.Fatalf("❌ start worker: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.NewHandler(cfg, stores, dispatcher, q),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("🚀 Server running on :%s (prefix %q, public URL %s)", cfg.Port, cfg.APIPrefix, cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("❌ server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if mq, ok := q.(*queue.InMemoryQueue); ok {
		mq.Wait()
	}
}
