package api

import (
	"net/http"

	"github.com/micro-nova/ov5640-go/internal/models"
)

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

// capture handles POST /api/capture. It returns the applied capture timing.
func (h *Handlers) capture(w http.ResponseWriter, r *http.Request) {
	c, appErr := h.ctrl.Capture(r.Context())
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) lastCapture(w http.ResponseWriter, r *http.Request) {
	c, appErr := h.ctrl.LastCapture()
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) restorePreview(w http.ResponseWriter, r *http.Request) {
	st, appErr := h.ctrl.RestorePreview(r.Context())
	respond(w, st, appErr)
}

func (h *Handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var upd models.SettingsUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	st, appErr := h.ctrl.UpdateSettings(r.Context(), upd)
	respond(w, st, appErr)
}
