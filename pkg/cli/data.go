package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mchmarny/riskcascade/pkg/data"
	"github.com/mchmarny/riskcascade/pkg/dataset"
	"github.com/mchmarny/riskcascade/pkg/pipeline"
)

const (
	maxUploadBytes  = 32 << 20
	apiInputDefault = "upload.csv"
	runLimitMax     = 500

	headerRunID    = "X-Risk-Run-Id"
	headerRunState = "X-Risk-Run-State"
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

// scoreAPIHandler runs the cascade over the CSV request body and responds with the enriched CSV.
// Runs that fail before the final stage respond with the run record instead.
func scoreAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := dataset.Read(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			slog.Debug("invalid upload", "error", err)
			writeError(w, http.StatusBadRequest, "request body must be a CSV file with a header row")
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			name = apiInputDefault
		}

		log := slog.Default().With("input", name)
		res := pipeline.New(cfg.Conf.Pipeline(), pipeline.WithLogger(log)).Run(r.Context(), d)

		run := data.NewRun(name, d.Rows(), res)
		if err := data.SaveRun(cfg.DB, run); err != nil {
			slog.Error("failed to save run", "run", run.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "error saving run")
			return
		}

		w.Header().Set(headerRunID, run.ID)
		w.Header().Set(headerRunState, run.State)

		if !res.Exportable() {
			writeJSON(w, http.StatusUnprocessableEntity, run)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+outputFileDefault)
		w.WriteHeader(http.StatusOK)
		if err := dataset.Write(w, d); err != nil {
			slog.Error("failed to write CSV response", "run", run.ID, "error", err)
		}
	}
}

func runsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", data.RunLimitDefault)
		list, err := data.ListRuns(db, limit)
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "error listing runs")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func runAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := data.GetRun(db, r.PathValue("id"))
		if err != nil {
			if errors.Is(err, data.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			slog.Error("failed to get run", "error", err)
			writeError(w, http.StatusInternalServerError, "error getting run")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func artifactsAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, listArtifacts(cfg.Conf.Layout()))
	}
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > runLimitMax {
		return def
	}

	return i
}
