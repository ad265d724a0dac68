package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/poseball/internal/store"
)

// RunHandler serves the webcam run history and the hits recorded in each run.
//
// Routes:
//
//	GET    /api/runs?limit=N
//	GET    /api/runs/{id}
//	DELETE /api/runs/{id}
//	GET    /api/runs/{id}/hits
type RunHandler struct {
	store  *store.Store
	active func() string
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// WithActiveRun sets fn to report the id of the run still being recorded,
// or "" when none is. That run cannot be deleted.
func (h *RunHandler) WithActiveRun(fn func() string) *RunHandler {
	h.active = fn
	return h
}

type runResponse struct {
	ID        string  `json:"id"`
	StartedAt string  `json:"started_at"`
	EndedAt   string  `json:"ended_at,omitempty"`
	Frames    int     `json:"frames"`
	Hits      int     `json:"hits"`
	MaxSpeed  float64 `json:"max_speed"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type hitResponse struct {
	ID            int64   `json:"id"`
	LandmarkIndex int     `json:"landmark_index"`
	BallX         float64 `json:"ball_x"`
	BallY         float64 `json:"ball_y"`
	VelX          float64 `json:"vel_x"`
	VelY          float64 `json:"vel_y"`
	Color         string  `json:"color"`
	CreatedAt     string  `json:"created_at"`
}

type listHitsResponse struct {
	RunID string        `json:"run_id"`
	Hits  []hitResponse `json:"hits"`
}

func toRunResponse(r *store.Run) runResponse {
	resp := runResponse{
		ID:        r.ID,
		StartedAt: formatTime(r.StartedAt),
		Frames:    r.Frames,
		Hits:      r.Hits,
		MaxSpeed:  r.MaxSpeed,
	}
	if r.EndedAt != nil {
		resp.EndedAt = formatTime(*r.EndedAt)
	}
	return resp
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/hits"); ok {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.hits(w, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, path)
	case http.MethodDelete:
		h.delete(w, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/runs.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// delete handles DELETE /api/runs/{id}.
func (h *RunHandler) delete(w http.ResponseWriter, id string) {
	if h.active != nil && h.active() == id {
		writeError(w, http.StatusConflict, "run is still recording")
		return
	}

	if err := h.store.Runs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// hits handles GET /api/runs/{id}/hits.
func (h *RunHandler) hits(w http.ResponseWriter, id string) {
	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	hits, err := h.store.Runs().Hits(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list hits")
		return
	}

	response := listHitsResponse{RunID: id, Hits: make([]hitResponse, 0, len(hits))}
	for _, hit := range hits {
		response.Hits = append(response.Hits, hitResponse{
			ID:            hit.ID,
			LandmarkIndex: hit.LandmarkIndex,
			BallX:         hit.BallX,
			BallY:         hit.BallY,
			VelX:          hit.VelX,
			VelY:          hit.VelY,
			Color:         hit.Color,
			CreatedAt:     formatTime(hit.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
