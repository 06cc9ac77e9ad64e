// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"strconv"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := c.CampaignService.DeleteCampaign(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) Launch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := c.CampaignService.Launch(id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":     "Campaign queued for sending",
		"campaign_id": id,
	})
}

func (c *CampaignController) Run(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.CampaignService.Run, "Campaign started successfully")
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.CampaignService.Pause, "Campaign paused successfully")
}

func (c *CampaignController) transition(w http.ResponseWriter, r *http.Request, fn func(int) error, msg string) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := fn(id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (c *CampaignController) Results(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := c.CampaignService.Results(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// SendEmail dispatches synchronously. Any per-target failure turns the
// response into a 500 that still lists what was sent.
func (c *CampaignController) SendEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID int `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ID <= 0 {
		writeError(w, r, appErrors.NewInvalid("Campaign ID is required"))
		return
	}

	report, err := c.CampaignService.SendNow(r.Context(), body.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if len(report.Errors) > 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"message": "Some emails failed",
			"errors":  report.Errors,
			"count":   report.Sent,
			"skipped": report.Skipped,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "✅ Emails sent successfully!",
		"count":   report.Sent,
		"skipped": report.Skipped,
	})
}
