package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/oudcrm-automation/internal/controller"
)

// NewRouter wires the HTTP API.
func NewRouter(campaigns *controller.CampaignController, automation *AutomationHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", automation.Healthz)

	// Campaign routes
	r.Get("/campaigns", campaigns.ListCampaigns)
	r.Get("/campaigns/{id}/performance", campaigns.GetPerformance)
	r.Post("/campaigns/{id}/preview", campaigns.PersonalizedPreview)
	r.Post("/campaigns/{id}/run", campaigns.RunCampaign)

	r.Post("/scheduler/run", automation.RunScheduler)
	r.Post("/delivery/refresh", automation.RefreshDelivery)

	r.Get("/webhooks/whatsapp", automation.VerifyWhatsAppWebhook)
	r.Post("/webhooks/whatsapp", automation.WhatsAppWebhook)
	return r
}
