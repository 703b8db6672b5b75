package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/clusterscan/internal/catalog"
	gormdb "github.com/thebtf/clusterscan/internal/db/gorm"
	"github.com/thebtf/clusterscan/pkg/models"
	"github.com/thebtf/clusterscan/pkg/units"
)

type detectionJSON struct {
	models.Detection
	PatchID string `json:"patch_id"`
	RAHMS   string `json:"ra_hms"`
	DecDMS  string `json:"dec_dms"`
}

func toDetectionJSON(ds []models.Detection) []detectionJSON {
	out := make([]detectionJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, detectionJSON{
			Detection: d,
			PatchID:   d.PatchID(),
			RAHMS:     units.FormatRA(d.RA),
			DecDMS:    units.FormatDec(d.Dec),
		})
	}
	return out
}

type catalogJSON struct {
	*catalog.Object
	RADeg     float64 `json:"ra_deg"`
	RadiusDeg float64 `json:"radius_deg"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	params := gormdb.ListParams{
		RunID:    r.URL.Query().Get("run"),
		MinScore: queryFloat(r, "min_score", 0),
		Limit:    limit,
		Offset:   offset,
	}

	ds, err := s.detections.List(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.detections.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detections": toDetectionJSON(ds),
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (s *Server) handleDetectionsByPatch(w http.ResponseWriter, r *http.Request) {
	patchID := chi.URLParam(r, "patchID")
	ds, err := s.detections.ByPatch(r.Context(), patchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(ds) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no detections for patch "+patchID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": toDetectionJSON(ds)})
}

type progressJSON struct {
	PatchID   string     `json:"patch_id"`
	RunID     string     `json:"run_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	entries, err := s.progress.Entries(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.progress.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]progressJSON, 0, len(entries))
	for _, e := range entries {
		p := progressJSON{PatchID: e.PatchID, RunID: e.RunID}
		if !e.CreatedAt.IsZero() {
			t := e.CreatedAt
			p.CreatedAt = &t
		}
		out = append(out, p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

type runJSON struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	RA         [2]float64 `json:"ra"`
	Dec        [2]float64 `json:"dec"`
	PatchSize  float64    `json:"patch_size"`
	Visited    int        `json:"visited"`
	Scored     int        `json:"scored"`
	Sparse     int        `json:"sparse"`
	Resumed    int        `json:"resumed"`
	Detections int        `json:"detections"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func toRunJSON(run gormdb.ScanRun) runJSON {
	out := runJSON{
		ID:         run.ID,
		Status:     run.Status,
		RA:         [2]float64{run.RAMin, run.RAMax},
		Dec:        [2]float64{run.DecMin, run.DecMax},
		PatchSize:  run.PatchSize,
		Visited:    run.Visited,
		Scored:     run.Scored,
		Sparse:     run.Sparse,
		Resumed:    run.Resumed,
		Detections: run.Detections,
		Error:      run.Error.String,
		StartedAt:  run.StartedAt,
	}
	if run.FinishedAt.Valid {
		t := run.FinishedAt.Time
		out.FinishedAt = &t
	}
	return out
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.Recent(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunJSON(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, gormdb.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunJSON(*run))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	objects := s.catalog.All()
	out := make([]catalogJSON, 0, len(objects))
	for _, o := range objects {
		out = append(out, catalogJSON{Object: o, RADeg: o.RADeg(), RadiusDeg: o.RadiusDeg()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": out})
}

func (s *Server) handleCatalogObject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	o, ok := s.catalog.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown object "+name))
		return
	}
	writeJSON(w, http.StatusOK, catalogJSON{Object: o, RADeg: o.RADeg(), RadiusDeg: o.RadiusDeg()})
}
