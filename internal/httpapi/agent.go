package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"fleetd/internal/agent"
	"fleetd/internal/runlog"
	"fleetd/pkg/types"
)

func (s *server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req types.AgentRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "task is required")
		return
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	resp, err := s.agent.Run(ctx, req)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAgentTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ToolCatalogResponse{Tools: agent.Catalog()})
}

func (s *server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSONError(w, http.StatusNotFound, "run_log_disabled", "agent run log is not enabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn().Err(err).Msg("run log read failed")
		writeJSONError(w, http.StatusInternalServerError, "internal", "failed to read run log")
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
