package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/poseball/internal/app"
)

// WebcamController is the part of the frame loop the webcam API drives.
type WebcamController interface {
	Toggle() (app.WebcamState, error)
	Enable() error
	Disable()
	Snapshot() app.Snapshot
}

// WebcamHandler exposes the ENABLE/DISABLE WEBCAM toggle.
//
//	GET  /api/webcam                  current state
//	POST /api/webcam                  toggle
//	POST /api/webcam?action=enable    enable
//	POST /api/webcam?action=disable   disable
type WebcamHandler struct {
	controller WebcamController
}

// NewWebcamHandler creates a new WebcamHandler for the given controller.
func NewWebcamHandler(c WebcamController) *WebcamHandler {
	return &WebcamHandler{controller: c}
}

type webcamResponse struct {
	State      string `json:"state"`
	Label      string `json:"label"`
	ModelReady bool   `json:"model_ready"`
	Mode       string `json:"mode"`
	RunID      string `json:"run_id,omitempty"`
}

// ServeHTTP implements the http.Handler interface.
func (h *WebcamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeState(w, http.StatusOK)
	case http.MethodPost:
		h.post(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebcamHandler) post(w http.ResponseWriter, r *http.Request) {
	var err error
	switch r.URL.Query().Get("action") {
	case "":
		_, err = h.controller.Toggle()
	case "enable":
		err = h.controller.Enable()
	case "disable":
		h.controller.Disable()
	default:
		writeError(w, http.StatusBadRequest, "action must be enable or disable")
		return
	}

	switch {
	case err == nil:
		h.writeState(w, http.StatusOK)
	case errors.Is(err, app.ErrModelNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, app.ErrCameraAcquisition):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to toggle webcam")
	}
}

func (h *WebcamHandler) writeState(w http.ResponseWriter, status int) {
	snap := h.controller.Snapshot()
	writeJSON(w, status, webcamResponse{
		State:      snap.State,
		Label:      snap.Label,
		ModelReady: snap.ModelReady,
		Mode:       snap.Mode,
		RunID:      snap.RunID,
	})
}
