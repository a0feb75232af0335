package api

import (
	"net/http"

	"github.com/micro-nova/ov5640-go/internal/models"
)

func (h *Handlers) initAF(w http.ResponseWriter, r *http.Request) {
	st, appErr := h.ctrl.InitAF(r.Context())
	respond(w, st, appErr)
}

func (h *Handlers) triggerAF(w http.ResponseWriter, r *http.Request) {
	st, appErr := h.ctrl.TriggerAF(r.Context())
	respond(w, st, appErr)
}

func (h *Handlers) pauseAF(w http.ResponseWriter, r *http.Request) {
	st, appErr := h.ctrl.PauseAF(r.Context())
	respond(w, st, appErr)
}

func (h *Handlers) releaseAF(w http.ResponseWriter, r *http.Request) {
	st, appErr := h.ctrl.ReleaseAF(r.Context())
	respond(w, st, appErr)
}

// lockFocus handles PUT /api/af/lock with {"locked": bool}.
func (h *Handlers) lockFocus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locked bool `json:"locked"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, appErr := h.ctrl.LockFocus(r.Context(), req.Locked)
	respond(w, st, appErr)
}

func (h *Handlers) setContinuous(w http.ResponseWriter, r *http.Request) {
	var req models.ContinuousRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, appErr := h.ctrl.SetContinuousAF(r.Context(), req.Enabled)
	respond(w, st, appErr)
}

// setZone handles PUT /api/af/zone. The window uses the -1000..1000
// normalized space; width and height default to the active frame.
func (h *Handlers) setZone(w http.ResponseWriter, r *http.Request) {
	var req models.ZoneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, appErr := h.ctrl.SetAFZone(r.Context(), req)
	respond(w, st, appErr)
}

func (h *Handlers) afStatus(w http.ResponseWriter, r *http.Request) {
	fs, appErr := h.ctrl.AFStatus(r.Context())
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}
