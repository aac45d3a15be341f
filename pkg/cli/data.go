package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mchmarny/claimq/pkg/data"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func runsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := data.ListRuns(db, queryParamInt(r, "limit", queryResultLimitDefault))
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func runAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		run, err := data.GetRun(db, id)
		if err != nil {
			writeRunError(w, id, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func deleteRunAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := data.DeleteRun(db, id); err != nil {
			writeRunError(w, id, err)
			return
		}
		slog.Info("run deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func queueAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("run")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run parameter required")
			return
		}

		if _, err := data.GetRun(db, id); err != nil {
			writeRunError(w, id, err)
			return
		}

		list, err := data.GetQueue(db, id, queryParamInt(r, "limit", queryResultLimitDefault))
		if err != nil {
			slog.Error("failed to get queue", "run", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get queue")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func writeRunError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	slog.Error("failed to get run", "run", id, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to get run")
}
