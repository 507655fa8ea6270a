// Package handlers serves the QA review API over the stored linkage runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
	"github.com/energy-linkage/internal/store"
)

// Config carries the feature toggles the handlers need.
type Config struct {
	Features struct {
		ManualOverrideEnabled bool `json:"manual_override_enabled"`
	} `json:"features"`
	Debug bool `json:"debug"`
}

// Backend is the read side of the store used by the API.
type Backend interface {
	Ping(ctx context.Context) error
	LatestRun(ctx context.Context) (store.Run, error)
	EntityMembers(ctx context.Context, runID string, id record.EntityID) ([]record.LinkageRow, error)
	RecordEntity(ctx context.Context, runID string, key record.Key) (record.LinkageRow, error)
	PairsForRecord(ctx context.Context, runID string, key record.Key) ([]store.Provenance, error)
	RecordHistory(ctx context.Context, key record.Key) ([]store.HistoryEntry, error)
}

// OverrideRecorder stores manual QA decisions and lists them per record.
type OverrideRecorder interface {
	RecordManualOverride(ctx context.Context, localDebug bool, ov match.Override) error
	OverrideHistory(ctx context.Context, key record.Key) ([]match.Override, error)
}

// APIHandler handles run-level endpoints.
type APIHandler struct {
	Backend Backend
	Config  *Config
}

// Health reports whether the database answers.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Backend.Ping(r.Context()); err != nil {
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LatestRun returns the summary and diagnostics of the most recent run.
func (h *APIHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Backend.LatestRun(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No runs stored", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// runID picks the run named by ?run= or the latest one.
func runID(r *http.Request, b Backend) (string, error) {
	if id := r.URL.Query().Get("run"); id != "" {
		return id, nil
	}
	run, err := b.LatestRun(r.Context())
	if err != nil {
		return "", err
	}
	return run.ID, nil
}
