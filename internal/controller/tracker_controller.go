package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/service"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

// MaxSubmitBody caps the captured form payload.
const MaxSubmitBody = 1 << 20

type TrackerController struct {
	Tracker *service.TrackerService
}

// clientOf reads the caller's address without its port. RealIP has
// already replaced RemoteAddr when a proxy header is present.
func clientOf(r *http.Request) service.Client {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.Client{IP: ip, UserAgent: r.UserAgent()}
}

// recipientParam decodes the {token} path segment. chi hands it over
// still percent-encoded, so "1%2A2" is accepted as well as "1*2".
func recipientParam(r *http.Request) (token.Recipient, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "token"))
	if err != nil {
		return token.Recipient{}, appErrors.NewInvalid("invalid token encoding")
	}
	return token.DecodeRecipient(raw)
}

func (c *TrackerController) TrackOpen(w http.ResponseWriter, r *http.Request) {
	rcpt, err := recipientParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.Tracker.TrackOpen(rcpt, clientOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      http.StatusOK,
		"detail":      "Email opened successfully tracked",
		"campaign_id": rcpt.CampaignID,
		"user_id":     rcpt.TargetID,
		"opened_at":   res.EmailOpenedAt,
	})
}

func (c *TrackerController) TrackSubmit(w http.ResponseWriter, r *http.Request) {
	rcpt, err := recipientParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := readObject(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := c.Tracker.TrackSubmit(rcpt, payload, clientOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      http.StatusOK,
		"detail":      "Form data captured successfully",
		"campaign_id": rcpt.CampaignID,
		"user_id":     rcpt.TargetID,
		"updates":     out.Updates,
	})
}

// readObject reads a JSON object body of at most MaxSubmitBody bytes and
// returns it compacted.
func readObject(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSubmitBody))
	if err != nil {
		return nil, appErrors.NewInvalid("request body too large or unreadable")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, appErrors.NewInvalid("Body must be a JSON object")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, appErrors.NewInvalid("invalid JSON body")
	}
	return buf.Bytes(), nil
}
