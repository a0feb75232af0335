// Package controller owns the sensor device and is the single source of
// truth for the daemon state: settings, autofocus progress and the last
// applied capture.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/events"
	"github.com/micro-nova/ov5640-go/internal/models"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// Controller serializes every state mutation behind one mutex and publishes
// the resulting snapshot on the event bus.
type Controller struct {
	mu       sync.Mutex
	dev      *sensor.Device
	store    config.Store
	bus      *events.Bus
	info     models.Info
	settings config.Settings
	detected bool
	focus    models.FocusState
	last     *models.Capture
	now      func() time.Time
}

// New creates a Controller. Settings are loaded from store; invalid stored
// settings fall back to the defaults. The sensor is not touched until Start.
func New(dev *sensor.Device, store config.Store, bus *events.Bus, info models.Info) (*Controller, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		slog.Warn("controller: stored settings invalid, using defaults", "err", err)
		def := config.DefaultSettings()
		st = &def
	}
	return &Controller{
		dev:      dev,
		store:    store,
		bus:      bus,
		info:     info,
		settings: *st,
		now:      time.Now,
	}, nil
}

// Start detects and initializes the sensor, applies the settings and, when
// initAF is set, downloads the autofocus firmware. A firmware handshake
// failure leaves AF unavailable but does not fail Start.
func (c *Controller) Start(ctx context.Context, initAF bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dev.Init(ctx); err != nil {
		return fmt.Errorf("controller: sensor init: %w", err)
	}
	c.detected = true
	if err := c.applyToHW(ctx, c.settings, nil); err != nil {
		return fmt.Errorf("controller: apply settings: %w", err)
	}
	if initAF {
		if err := c.dev.InitAF(ctx); err != nil {
			slog.Warn("controller: autofocus unavailable", "err", err)
		}
	}
	c.focus.Context = c.dev.AF()
	c.publish(models.EventSettings)
	slog.Info("controller: sensor started", "af", initAF && !c.focus.Context.Failed)
	return nil
}

// State returns a deep copy of the current daemon state.
func (c *Controller) State() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() models.Snapshot {
	af := c.dev.AF()
	focus := c.focus
	focus.Context = af
	focus.Mode = af.Mode.String()
	s := models.Snapshot{
		Info:        c.info,
		Sensor:      models.NewSensorState(c.dev.Status(), c.detected),
		Focus:       focus,
		Settings:    c.settings,
		LastCapture: c.last,
	}
	return s.DeepCopy()
}

// publish sends the current snapshot to subscribers. Callers hold c.mu.
func (c *Controller) publish(kind string) models.Snapshot {
	s := c.snapshot()
	c.bus.Publish(models.Event{Kind: kind, State: s})
	return s
}

// applyToHW programs the sensor for next. When prev is nil every setting is
// written; otherwise only the settings that differ from prev.
func (c *Controller) applyToHW(ctx context.Context, next config.Settings, prev *config.Settings) error {
	p, err := next.CaptureParams()
	if err != nil {
		return err
	}
	if err := c.dev.SetCaptureParams(p); err != nil {
		return err
	}
	if prev == nil || prev.BandFilter != next.BandFilter {
		if err := c.dev.SetBandFilter(ctx, next.Band()); err != nil {
			return fmt.Errorf("band filter: %w", err)
		}
	}
	if prev == nil || prev.Sharpness != next.Sharpness {
		if err := c.dev.SetSharpness(ctx, next.Sharpness); err != nil {
			return fmt.Errorf("sharpness: %w", err)
		}
	}
	if prev == nil || prev.FrameRate != next.FrameRate {
		if err := c.dev.SetFrameInterval(1, next.FrameRate); err != nil {
			return fmt.Errorf("frame rate: %w", err)
		}
	}
	if prev == nil || prev.FrameWidth != next.FrameWidth || prev.FrameHeight != next.FrameHeight {
		if err := c.dev.SetFrameSize(ctx, next.FrameWidth, next.FrameHeight); err != nil {
			return fmt.Errorf("frame size: %w", err)
		}
	}
	if err := c.dev.SetFlip(ctx, true, next.HFlip); err != nil {
		return fmt.Errorf("hflip: %w", err)
	}
	if err := c.dev.SetFlip(ctx, false, next.VFlip); err != nil {
		return fmt.Errorf("vflip: %w", err)
	}
	if err := c.dev.SetExposureBias(ctx, next.ExposureBias); err != nil {
		return fmt.Errorf("exposure bias: %w", err)
	}
	return nil
}

// UpdateSettings applies a partial settings update to the sensor and
// persists it. Nothing is saved if validation or a register write fails.
func (c *Controller) UpdateSettings(ctx context.Context, upd models.SettingsUpdate) (models.Snapshot, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings
	upd.Apply(&next)
	if err := next.Validate(); err != nil {
		return models.Snapshot{}, models.FromError(err)
	}
	if err := c.applyToHW(ctx, next, &c.settings); err != nil {
		return models.Snapshot{}, models.FromError(err)
	}
	c.settings = next
	_ = c.store.Save(&c.settings) // debounced, async
	return c.publish(models.EventSettings), nil
}

// ApplySettings installs settings reloaded from the config file. They are
// not saved back. Settings equal to the active ones are ignored.
func (c *Controller) ApplySettings(ctx context.Context, next config.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if next == c.settings {
		return nil
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := c.applyToHW(ctx, next, &c.settings); err != nil {
		return err
	}
	c.settings = next
	c.publish(models.EventSettings)
	return nil
}

// Settings returns the active settings.
func (c *Controller) Settings() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}
