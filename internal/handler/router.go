// Package handler wires the controllers onto a chi router.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/phishsim-backend/internal/controller"
	"github.com/unclebandit/phishsim-backend/internal/logger"
)

type Controllers struct {
	Campaigns *controller.CampaignController
	Phishlets *controller.PhishletController
	Tracker   *controller.TrackerController
}

// NewRouter mounts every route under prefix (for example "/api/v1").
func NewRouter(prefix string, c Controllers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	routes := func(r chi.Router) {
		// Public endpoints hit by recipients' browsers and mail clients.
		r.Get("/track/f1/{token}", c.Tracker.TrackOpen)
		r.Post("/track/f2/{token}", c.Tracker.TrackSubmit)

		r.Route("/phishlets", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/serve/{token}", c.Phishlets.Serve)
			r.Get("/", c.Phishlets.List)
			r.Post("/", c.Phishlets.Save)
			r.Post("/clone", c.Phishlets.Clone)
			r.Post("/clone-preview", c.Phishlets.ClonePreview)
			r.Post("/preview", c.Phishlets.Preview)
			r.Get("/{id}", c.Phishlets.Get)
			r.Get("/{id}/content", c.Phishlets.Content)
			r.Delete("/{id}", c.Phishlets.Delete)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", c.Campaigns.CreateCampaign)
			r.Get("/", c.Campaigns.ListCampaigns)
			r.Post("/send_email", c.Campaigns.SendEmail)
			r.Get("/{id}", c.Campaigns.GetCampaignDetails)
			r.Delete("/{id}", c.Campaigns.DeleteCampaign)
			r.Post("/{id}/launch", c.Campaigns.Launch)
			r.Post("/{id}/run", c.Campaigns.Run)
			r.Post("/{id}/pause", c.Campaigns.Pause)
			r.Get("/{id}/results", c.Campaigns.Results)
		})
	}

	if prefix == "" {
		r.Group(routes)
	} else {
		r.Route(prefix, routes)
	}
	return r
}
