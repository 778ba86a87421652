package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError maps domain errors to HTTP statuses.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsCampaignNotFound(err), errors.Is(err, appErrors.ErrCustomerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appErrors.ErrCampaignNotRunning),
		errors.Is(err, appErrors.ErrUnknownTrigger),
		errors.Is(err, appErrors.ErrLockHeld):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
