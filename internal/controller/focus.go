package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/ov5640-go/internal/models"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// InitAF downloads the autofocus firmware.
func (c *Controller) InitAF(ctx context.Context) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error { return c.dev.InitAF(ctx) })
}

// TriggerAF starts a single-shot focus. The poller reports its outcome.
func (c *Controller) TriggerAF(ctx context.Context) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error {
		if err := c.dev.TriggerSingleAF(ctx); err != nil {
			return err
		}
		c.focus.Status = sensor.AFBusy
		return nil
	})
}

// SetContinuousAF switches continuous focus on or off.
func (c *Controller) SetContinuousAF(ctx context.Context, enabled bool) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error { return c.dev.SetContinuousAF(ctx, enabled) })
}

// PauseAF holds the lens.
func (c *Controller) PauseAF(ctx context.Context) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error { return c.dev.PauseAF(ctx) })
}

// ReleaseAF returns the lens to its rest position.
func (c *Controller) ReleaseAF(ctx context.Context) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error { return c.dev.ReleaseAF(ctx) })
}

// LockFocus pauses focus while the 3A state is locked and relaunches the
// default zone when unlocked.
func (c *Controller) LockFocus(ctx context.Context, locked bool) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error { return c.dev.Lock3A(ctx, locked) })
}

// SetAFZone focuses on a window of the active frame.
func (c *Controller) SetAFZone(ctx context.Context, req models.ZoneRequest) (models.Snapshot, *models.AppError) {
	return c.focusOp(func() error {
		w, h := req.Width, req.Height
		if w == 0 || h == 0 {
			w, h = c.dev.FrameSize()
		}
		if err := c.dev.SetAFZone(ctx, req.Window, w, h); err != nil {
			return err
		}
		zone := req.Window
		c.focus.Zone = &zone
		return nil
	})
}

// AFStatus polls the focus status once.
func (c *Controller) AFStatus(ctx context.Context) (models.FocusState, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.dev.AFStatus(ctx)
	if err != nil {
		return models.FocusState{}, models.FromError(err)
	}
	if c.recordFocus(st) {
		c.publish(models.EventFocus)
	}
	return c.snapshot().Focus, nil
}

func (c *Controller) focusOp(fn func() error) (models.Snapshot, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(); err != nil {
		return models.Snapshot{}, models.FromError(err)
	}
	c.focus.Context = c.dev.AF()
	return c.publish(models.EventFocus), nil
}

// recordFocus stores a polled status and reports whether it changed.
func (c *Controller) recordFocus(st sensor.AFStatus) bool {
	changed := st != c.focus.Status
	c.focus.Status = st
	c.focus.Context = c.dev.AF()
	c.focus.Polled = c.now()
	return changed
}

// RunFocusPoller polls the focus status every af_poll_ms while a focus is in
// flight or continuous focus is on, until ctx is done.
func (c *Controller) RunFocusPoller(ctx context.Context) {
	c.mu.Lock()
	interval := time.Duration(c.settings.AFPollMS) * time.Millisecond
	c.mu.Unlock()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.pollFocus(ctx)
		}
	}
}

func (c *Controller) pollFocus(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	af := c.dev.AF()
	if af.Failed || (af.Mode != sensor.FocusContinuous && af.Status != sensor.FocusBusy) {
		return
	}
	st, err := c.dev.AFStatus(ctx)
	if err != nil {
		slog.Warn("controller: af poll failed", "err", err)
		return
	}
	if c.recordFocus(st) {
		slog.Debug("controller: focus status changed", "status", st)
		c.publish(models.EventFocus)
	}
}
