package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// WatermarksHandler handles GET /api/pipeline/v1/watermarks, the
// current mark of every tracked table.
func WatermarksHandler(store *watermark.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := store.Latest(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list watermarks: %v", err))
			return
		}

		out := make([]watermarkResponse, len(rows))
		for i, row := range rows {
			out[i] = trackerToResponse(row)
		}
		writeJSON(w, http.StatusOK, map[string]any{"watermarks": out})
	}
}

// WatermarkHistoryHandler handles GET /api/pipeline/v1/watermarks/{table},
// the tracker history of one logical table, newest first.
func WatermarkHistoryHandler(store *watermark.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "table")
		if table == "" {
			writeJSONError(w, http.StatusBadRequest, "missing table name")
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		rows, err := store.History(r.Context(), table, limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get watermark history: %v", err))
			return
		}

		out := make([]watermarkResponse, len(rows))
		for i, row := range rows {
			out[i] = trackerToResponse(row)
		}
		writeJSON(w, http.StatusOK, map[string]any{"table": table, "history": out})
	}
}

type watermarkResponse struct {
	TrackerID    int64  `json:"trackerId"`
	Table        string `json:"table"`
	LastLoadedAt string `json:"lastLoadedAt"`
	Generation   int64  `json:"generation"`
}

func trackerToResponse(row watermark.LoadTracker) watermarkResponse {
	return watermarkResponse{
		TrackerID:    row.TrackerID,
		Table:        row.Table,
		LastLoadedAt: row.LastLoadedAt.UTC().Format(time.RFC3339),
		Generation:   row.Generation,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
