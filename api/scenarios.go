/*
scenarios.go - Demo scenario handlers

PURPOSE:
  Lets the dashboard switch between demo datasets. Loading a scenario wipes
  the database, writes the scenario's raw records, and rebuilds every derived
  record in one pass instead of replaying events.

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load   {"scenario_id": "overloaded-sprint"}
	GET  /api/scenarios/current
	POST /api/scenarios/reset

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - scenario/: YAML datasets and loader
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/scenario"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all, err := scenario.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}

	dtos := make([]ScenarioDTO, len(all))
	for i, s := range all {
		dtos[i] = toScenarioDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	id := h.currentScenario
	h.mu.Unlock()

	if id == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, err := scenario.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTO(*s))
}

// LoadScenario replaces the database content with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := scenario.Get(req.ScenarioID); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}

	stats, err := h.Seed(r.Context(), req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"rebuilt":  stats,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Seed replaces the database content with the scenario and rebuilds every
// derived record. The CLI seed command calls it directly.
func (h *Handler) Seed(ctx context.Context, id string) (performance.RebuildStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		return performance.RebuildStats{}, err
	}
	if _, err := scenario.Load(ctx, h.Store, h.Clock, id); err != nil {
		return performance.RebuildStats{}, err
	}
	stats, err := h.Engine.RecomputeAll(ctx, h.Store)
	if err != nil {
		return stats, err
	}
	h.currentScenario = id
	return stats, nil
}

func toScenarioDTO(s scenario.Scenario) ScenarioDTO {
	return ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
}
