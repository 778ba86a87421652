// internal/handler/automation_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/controller"
	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/provider"
	"github.com/unclebandit/oudcrm-automation/internal/service"
)

// AutomationHandler exposes the scheduler and delivery tracking over HTTP.
type AutomationHandler struct {
	Scheduler *service.Scheduler
	Tracker   *service.DeliveryTracker
	// VerifyToken answers the WhatsApp webhook subscription challenge.
	VerifyToken string
	// AppSecret authenticates webhook deliveries. Without it every receipt
	// is rejected.
	AppSecret string
	Today     func() time.Time
	Logger    *slog.Logger
}

func (h *AutomationHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunScheduler triggers the daily run, for ?date=YYYY-MM-DD or today.
func (h *AutomationHandler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date"})
			return
		}
		today = d
	}

	report, err := h.Scheduler.RunScheduledCampaigns(r.Context(), today)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, report)
}

// RefreshDelivery runs one delivery polling pass.
func (h *AutomationHandler) RefreshDelivery(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	res, err := h.Tracker.Refresh(r.Context(), limit)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, res)
}

// VerifyWhatsAppWebhook answers the hub.challenge handshake.
func (h *AutomationHandler) VerifyWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.VerifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.VerifyToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

type whatsAppWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

const maxWebhookBody = 1 << 20

// WhatsAppWebhook applies signed delivery receipts. Unknown message ids are
// acknowledged so the platform does not redeliver them.
func (h *AutomationHandler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if !provider.VerifyWhatsAppSignature(body, h.AppSecret, r.Header.Get("X-Hub-Signature-256")) {
		h.logger().Warn("rejected unsigned whatsapp webhook", "remote_addr", r.RemoteAddr)
		controller.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var payload whatsAppWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	applied := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				changed, err := h.Tracker.ApplyStatus(r.Context(), st.ID, provider.WhatsAppStatus(st.Status))
				switch {
				case errors.Is(err, appErrors.ErrExecutionNotFound):
					h.logger().Debug("receipt for unknown message", "provider_message_id", st.ID)
				case err != nil:
					h.logger().Error("failed to apply whatsapp receipt", "provider_message_id", st.ID, "error", err)
				case changed:
					applied++
				}
			}
		}
	}
	controller.WriteJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

func (h *AutomationHandler) today() time.Time {
	if h.Today != nil {
		return h.Today()
	}
	return service.LocalDate(time.Now(), time.UTC)
}

func (h *AutomationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
