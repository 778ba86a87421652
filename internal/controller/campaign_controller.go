// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/oudcrm-automation/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	// Today returns the business date used for previews and run requests.
	Today func() time.Time
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	campaignType := r.URL.Query().Get("type")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, campaignType, status)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination, // page, page_size, total_count, total_pages
	})
}

func (c *CampaignController) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	perf, err := c.CampaignService.GetCampaignPerformance(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, perf)
}

// PersonalizedPreview renders the campaign for one customer without sending.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var body struct {
		CustomerID int    `json:"customer_id"`
		Date       string `json:"date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CustomerID <= 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	today, err := c.date(body.Date)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date"})
		return
	}

	preview, err := c.CampaignService.RenderPreview(r.Context(), id, body.CustomerID, today)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, preview)
}

// RunCampaign queues a run of a triggered campaign for today.
func (c *CampaignController) RunCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	today := c.today()
	if err := c.CampaignService.RequestRun(r.Context(), id, today); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"campaign_id": id,
		"date":        today.Format(time.DateOnly),
		"status":      "queued",
	})
}

func (c *CampaignController) date(s string) (time.Time, error) {
	if s == "" {
		return c.today(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func (c *CampaignController) today() time.Time {
	if c.Today != nil {
		return c.Today()
	}
	return service.LocalDate(time.Now(), time.UTC)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return 0, false
	}
	return id, true
}
