// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/app"
	"github.com/unclebandit/oudcrm-automation/internal/config"
	"github.com/unclebandit/oudcrm-automation/internal/controller"
	"github.com/unclebandit/oudcrm-automation/internal/handler"
	"github.com/unclebandit/oudcrm-automation/internal/logger"
	"github.com/unclebandit/oudcrm-automation/internal/service"
)

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

	// Without a broker the server consumes its own run requests.
	if !cfg.RabbitMQ.Enabled() {
		w := service.NewWorker(ctx, a.Scheduler, a.Queue)
		w.Logger = lg
		if err := w.Start(); err != nil {
			lg.Error("failed to start in-process worker", "error", err)
			os.Exit(1)
		}
		if cfg.Events.Enabled {
			audit := &service.EventAudit{Logger: lg}
			if err := audit.Start(a.Queue); err != nil {
				lg.Error("failed to register event consumer", "error", err)
				os.Exit(1)
			}
		}
	}

	campaignController := &controller.CampaignController{
		CampaignService: a.CampaignService,
		Today:           a.Today,
	}
	automationHandler := &handler.AutomationHandler{
		Scheduler:   a.Scheduler,
		Tracker:     a.Tracker,
		VerifyToken: cfg.Providers.WhatsApp.VerifyToken,
		AppSecret:   cfg.Providers.WhatsApp.AppSecret,
		Today:       a.Today,
		Logger:      lg,
	}
	if cfg.Providers.WhatsApp.Enabled && cfg.Providers.WhatsApp.AppSecret == "" {
		lg.Warn("WHATSAPP_APP_SECRET is not set; whatsapp delivery receipts will be rejected")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.NewRouter(campaignController, automationHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server running", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", "error", err)
	}
	lg.Info("server stopped")
}
