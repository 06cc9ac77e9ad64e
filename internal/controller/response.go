package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

// writeError maps err to its status and writes {"status", "detail"}.
// Internal errors are logged and reported without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.StatusCode(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logger.Fields{"method": r.Method, "path": r.URL.Path}).Errorf("❌ %v", err)
		detail = "internal server error"
	}
	writeJSON(w, status, map[string]interface{}{"status": status, "detail": detail})
}

func idParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, appErrors.NewInvalid("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewInvalid("invalid request body: %v", err)
	}
	return nil
}
