package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/unclebandit/oudcrm-automation/internal/app"
	"github.com/unclebandit/oudcrm-automation/internal/config"
	"github.com/unclebandit/oudcrm-automation/internal/logger"
	"github.com/unclebandit/oudcrm-automation/internal/service"
)

// The worker consumes queued campaign runs, fires the daily scheduler and
// polls providers for delivery receipts.
func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logger.Init(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	w := service.NewWorker(ctx, a.Scheduler, a.Queue)
	w.Logger = lg
	if err := w.Start(); err != nil {
		lg.Error("failed to register consumer", "error", err)
		os.Exit(1)
	}

	if cfg.Events.Enabled {
		audit := &service.EventAudit{Logger: lg}
		if err := audit.Start(a.Queue); err != nil {
			lg.Error("failed to register event consumer", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Scheduler.Enabled {
		a.Scheduler.Start(ctx)
		defer a.Scheduler.Stop()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Tracker.Poll(ctx, cfg.Delivery.PollInterval(), cfg.Delivery.BatchSize)
	}()

	lg.Info("worker running, waiting for messages", "scheduler", cfg.Scheduler.Enabled)
	<-ctx.Done()
	wg.Wait()
	lg.Info("worker stopped")
}
