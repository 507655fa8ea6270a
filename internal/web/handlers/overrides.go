package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/match"
)

// OverridesHandler accepts manual QA decisions.
type OverridesHandler struct {
	Recorder OverrideRecorder
	Config   *Config
}

// CreateOverride stores a must_link or cannot_link decision. The reviewer
// defaults to the X-Reviewer header.
func (h *OverridesHandler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ManualOverrideEnabled {
		http.Error(w, "Feature disabled", http.StatusForbidden)
		return
	}

	var ov match.Override
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ov); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	ov.Kind = match.OverrideKind(strings.ToLower(string(ov.Kind)))
	if ov.Reviewer == "" {
		ov.Reviewer = r.Header.Get("X-Reviewer")
	}

	err := h.Recorder.RecordManualOverride(r.Context(), h.Config.Debug, ov)
	switch {
	case errors.Is(err, audit.ErrInvalidOverride):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "Failed to record override", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, ov)
}
