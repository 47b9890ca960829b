package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/slidedeck/internal/pipeline"
)

func toolStatsHandler(orch *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orch == nil || orch.Stats() == nil {
			jsonError(w, "tool stats unavailable", http.StatusServiceUnavailable)
			return
		}

		stats := orch.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total": stats.Total(),
			"tools": stats.Snapshot(),
		})
	}
}
