package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
	"github.com/energy-linkage/internal/store"
)

// RecordsHandler serves entities and records with their provenance.
type RecordsHandler struct {
	Backend Backend
	Config  *Config
	// Overrides, when set, lists the manual decisions touching a record.
	Overrides OverrideRecorder
	// Model, when set, is used to explain each pair's confidence.
	Model *match.LogisticModel
}

// EntityResponse lists the records of one entity.
type EntityResponse struct {
	RunID    string               `json:"run_id"`
	EntityID record.EntityID      `json:"entity_id"`
	Members  []record.LinkageRow  `json:"members"`
	Years    map[int][]record.Key `json:"years"`
}

// PairResponse is a stored pair decision, optionally explained.
type PairResponse struct {
	store.Provenance
	Explanation *audit.Explanation `json:"explanation,omitempty"`
}

// RecordResponse is everything a reviewer needs to judge one record.
type RecordResponse struct {
	RunID   string               `json:"run_id"`
	Record  record.LinkageRow    `json:"record"`
	Members []record.LinkageRow  `json:"entity_members"`
	Pairs   []PairResponse       `json:"pairs"`
	History []store.HistoryEntry `json:"history"`
	// Overrides are the manual decisions naming this record.
	Overrides []match.Override `json:"overrides"`
}

// GetEntity returns the members of an entity grouped by year.
func (h *RecordsHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid entity ID", http.StatusBadRequest)
		return
	}
	run, err := runID(r, h.Backend)
	if !h.checkLookup(w, err, "No runs stored") {
		return
	}

	members, err := h.Backend.EntityMembers(r.Context(), run, record.EntityID(id))
	if !h.checkLookup(w, err, "Entity not found") {
		return
	}

	resp := EntityResponse{RunID: run, EntityID: record.EntityID(id), Members: members, Years: map[int][]record.Key{}}
	for _, m := range members {
		resp.Years[m.Year] = append(resp.Years[m.Year], m.Key)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRecord returns a record's entity, the other members of that entity,
// every pair scored for it and its entity id across stored runs.
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	key := record.Key{Dataset: vars["dataset"], Year: year, LocalID: vars["local_id"]}

	run, err := runID(r, h.Backend)
	if !h.checkLookup(w, err, "No runs stored") {
		return
	}
	row, err := h.Backend.RecordEntity(r.Context(), run, key)
	if !h.checkLookup(w, err, "Record not found") {
		return
	}
	members, err := h.Backend.EntityMembers(r.Context(), run, row.EntityID)
	if !h.checkLookup(w, err, "Entity not found") {
		return
	}
	pairs, err := h.Backend.PairsForRecord(r.Context(), run, key)
	if !h.checkLookup(w, err, "") {
		return
	}
	history, err := h.Backend.RecordHistory(r.Context(), key)
	if !h.checkLookup(w, err, "") {
		return
	}

	var overrides []match.Override
	if h.Overrides != nil {
		overrides, err = h.Overrides.OverrideHistory(r.Context(), key)
		if err != nil && !errors.Is(err, audit.ErrNoOverrideStore) {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}

	resp := RecordResponse{RunID: run, Record: row, Members: members, History: history, Overrides: overrides}
	for _, p := range pairs {
		pr := PairResponse{Provenance: p}
		if h.Model != nil {
			ex := audit.Explain(h.Model, featuresOf(p.Features))
			pr.Explanation = &ex
		}
		resp.Pairs = append(resp.Pairs, pr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkLookup writes the error response for err and reports whether the
// handler may continue.
func (h *RecordsHandler) checkLookup(w http.ResponseWriter, err error, notFound string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound) && notFound != "":
		http.Error(w, notFound, http.StatusNotFound)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
	return false
}

func featuresOf(m map[string]float64) match.Features {
	var f match.Features
	for name, v := range m {
		if i := match.FeatureIndex(name); i >= 0 {
			f[i] = v
		}
	}
	return f
}
