// Package api implements the HTTP control surface of the sensor daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-nova/ov5640-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl   Controller
	events EventBus
}

// Controller is the interface the handlers use to drive the sensor.
type Controller interface {
	State() models.Snapshot
	Capture(ctx context.Context) (models.Capture, *models.AppError)
	LastCapture() (models.Capture, *models.AppError)
	RestorePreview(ctx context.Context) (models.Snapshot, *models.AppError)
	UpdateSettings(ctx context.Context, upd models.SettingsUpdate) (models.Snapshot, *models.AppError)
	InitAF(ctx context.Context) (models.Snapshot, *models.AppError)
	TriggerAF(ctx context.Context) (models.Snapshot, *models.AppError)
	PauseAF(ctx context.Context) (models.Snapshot, *models.AppError)
	ReleaseAF(ctx context.Context) (models.Snapshot, *models.AppError)
	LockFocus(ctx context.Context, locked bool) (models.Snapshot, *models.AppError)
	SetContinuousAF(ctx context.Context, enabled bool) (models.Snapshot, *models.AppError)
	SetAFZone(ctx context.Context, req models.ZoneRequest) (models.Snapshot, *models.AppError)
	AFStatus(ctx context.Context) (models.FocusState, *models.AppError)
}

// EventBus is the interface for subscribing to state change events.
type EventBus interface {
	Subscribe(id string) <-chan models.Event
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.ErrBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// respond writes a snapshot result or its error.
func respond(w http.ResponseWriter, st models.Snapshot, appErr *models.AppError) {
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
