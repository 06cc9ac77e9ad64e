package controller

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/service"
)

type PhishletController struct {
	PhishletService *service.PhishletService
}

type phishletResponse struct {
	*model.Phishlet
	CloneURL string `json:"clone_url"`
}

func (c *PhishletController) respond(w http.ResponseWriter, status int, p *model.Phishlet) {
	meta := *p
	meta.HTML = ""
	writeJSON(w, status, phishletResponse{Phishlet: &meta, CloneURL: c.PhishletService.CloneURL(p)})
}

// Serve is the public landing page. Errors are plain text so a browser
// shows something sensible.
func (c *PhishletController) Serve(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	html, err := c.PhishletService.Serve(raw, clientOf(r))
	if err != nil {
		status := appErrors.StatusCode(err)
		switch status {
		case http.StatusBadRequest:
			http.Error(w, "invalid token", status)
		case http.StatusNotFound:
			http.Error(w, "page not found", status)
		default:
			writeError(w, r, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (c *PhishletController) Clone(w http.ResponseWriter, r *http.Request) {
	var body service.PhishletOptions
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := c.PhishletService.Clone(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.respond(w, http.StatusCreated, p)
}

func (c *PhishletController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HTML        string `json:"html_content"`
		OriginalURL string `json:"original_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := c.PhishletService.Preview(body.HTML, body.OriginalURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (c *PhishletController) Save(w http.ResponseWriter, r *http.Request) {
	var body service.SavePhishletRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := c.PhishletService.Save(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.respond(w, http.StatusCreated, p)
}

func (c *PhishletController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := c.PhishletService.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.respond(w, http.StatusOK, p)
}

func (c *PhishletController) List(w http.ResponseWriter, r *http.Request) {
	phishlets, err := c.PhishletService.List()
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]phishletResponse, len(phishlets))
	for i, p := range phishlets {
		out[i] = phishletResponse{Phishlet: p, CloneURL: c.PhishletService.CloneURL(p)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *PhishletController) ClonePreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := c.PhishletService.ClonePreview(r.Context(), body.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (c *PhishletController) Content(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	content, err := c.PhishletService.Content(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (c *PhishletController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := c.PhishletService.Delete(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
