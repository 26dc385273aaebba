package runs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetRunHandler handles GET /api/runs/v1/{runId}
func GetRunHandler(store *RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runId")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "missing run ID")
			return
		}

		run, err := store.Get(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get run: %v", err))
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", runID))
			return
		}

		writeJSON(w, http.StatusOK, runToResponse(run))
	}
}

// GetRunByGenerationHandler handles GET /api/runs/v1/stage/{stage}/generation/{generation}
func GetRunByGenerationHandler(store *RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := chi.URLParam(r, "stage")
		generation, err := strconv.ParseInt(chi.URLParam(r, "generation"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid generation")
			return
		}

		run, err := store.GetByGeneration(stage, generation)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get run: %v", err))
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound,
				fmt.Sprintf("no run of stage %q for generation %d", stage, generation))
			return
		}

		writeJSON(w, http.StatusOK, runToResponse(run))
	}
}

// ListRunsHandler handles GET /api/runs/v1
// Query params: stage, state, pageSize, pageToken
func ListRunsHandler(store *RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := RunListFilter{
			Stage: r.URL.Query().Get("stage"),
			State: r.URL.Query().Get("state"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.List(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
			return
		}

		out := make([]runResponse, len(records))
		for i := range records {
			out[i] = runToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"runs":          out,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// runResponse is the API response for a pipeline run.
type runResponse struct {
	ID          string `json:"id"`
	Stage       string `json:"stage"`
	Generation  int64  `json:"generation,omitempty"`
	State       string `json:"state"`
	RowsWritten int64  `json:"rowsWritten,omitempty"`
	RequestedAt string `json:"requestedAt"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

func runToResponse(run *PipelineRun) runResponse {
	resp := runResponse{
		ID:          run.ID,
		Stage:       run.Stage,
		Generation:  run.Generation,
		State:       string(run.State),
		RowsWritten: run.RowsWritten,
		RequestedAt: run.RequestedAt.Format(time.RFC3339),
		LastError:   run.LastError,
		DurationMs:  run.DurationMs,
	}
	if run.StartedAt != nil {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
