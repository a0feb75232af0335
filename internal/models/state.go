// Package models defines the data structures exchanged between the
// controller, the event bus and the HTTP API.
package models

import (
	"time"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// Info describes the running daemon.
type Info struct {
	Version string `json:"version"`
	Mock    bool   `json:"mock"`
	Backend string `json:"backend"`
}

// SensorState is the JSON view of the sensor device context.
type SensorState struct {
	Detected     bool                 `json:"detected"`
	Metering     sensor.MeteringState `json:"metering"`
	BandFilter   string               `json:"band_filter"`
	LowSpeed     bool                 `json:"low_speed"`
	FrameDivider uint32               `json:"frame_divider"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	HFlip        bool                 `json:"hflip"`
	VFlip        bool                 `json:"vflip"`
	ExposureBias int                  `json:"exposure_bias"`
}

// NewSensorState converts a device status snapshot.
func NewSensorState(st sensor.Status, detected bool) SensorState {
	return SensorState{
		Detected:     detected,
		Metering:     st.Metering,
		BandFilter:   st.BandFilter.String(),
		LowSpeed:     st.LowSpeed,
		FrameDivider: st.FrameDivider,
		Width:        st.Width,
		Height:       st.Height,
		HFlip:        st.HFlip,
		VFlip:        st.VFlip,
		ExposureBias: st.ExposureBias,
	}
}

// FocusState is the autofocus view: the persistent context plus the last
// polled status.
type FocusState struct {
	Context sensor.AFContext `json:"context"`
	Status  sensor.AFStatus  `json:"status"`
	Mode    string           `json:"mode"`
	Zone    *sensor.Window   `json:"zone,omitempty"`
	Polled  time.Time        `json:"polled,omitzero"`
}

// Capture records one applied still-capture exposure.
type Capture struct {
	ID     string               `json:"id"`
	Time   time.Time            `json:"time"`
	Timing sensor.CaptureTiming `json:"timing"`
}

// Snapshot is the complete observable daemon state.
type Snapshot struct {
	Info        Info            `json:"info"`
	Sensor      SensorState     `json:"sensor"`
	Focus       FocusState      `json:"focus"`
	Settings    config.Settings `json:"settings"`
	LastCapture *Capture        `json:"last_capture,omitempty"`
}

// DeepCopy returns a copy that shares no pointers with s.
func (s Snapshot) DeepCopy() Snapshot {
	cp := s
	if s.Focus.Zone != nil {
		z := *s.Focus.Zone
		cp.Focus.Zone = &z
	}
	if s.LastCapture != nil {
		c := *s.LastCapture
		cp.LastCapture = &c
	}
	return cp
}

// Event kinds published on the bus.
const (
	EventSettings = "settings"
	EventCapture  = "capture"
	EventPreview  = "preview"
	EventFocus    = "focus"
)

// Event is one state change delivered to subscribers.
type Event struct {
	Kind  string   `json:"kind"`
	State Snapshot `json:"state"`
}

// SettingsUpdate is a partial update of the runtime tuning settings. Nil
// fields are left unchanged.
type SettingsUpdate struct {
	NightMode        *uint32 `json:"night_mode,omitempty"`
	MaxCaptureFrames *uint32 `json:"max_capture_frames,omitempty"`
	GainMode         *string `json:"gain_mode,omitempty"`
	ManualGain       *uint32 `json:"manual_gain,omitempty"`
	DenoiseMode      *string `json:"denoise_mode,omitempty"`
	DenoiseLevel     *uint8  `json:"denoise_level,omitempty"`
	Sharpness        *uint8  `json:"sharpness,omitempty"`
	BandFilter       *string `json:"band_filter,omitempty"`
	ExposureBias     *int    `json:"exposure_bias,omitempty"`
	HFlip            *bool   `json:"hflip,omitempty"`
	VFlip            *bool   `json:"vflip,omitempty"`
	FrameWidth       *int    `json:"frame_width,omitempty"`
	FrameHeight      *int    `json:"frame_height,omitempty"`
	FrameRate        *uint32 `json:"frame_rate,omitempty"`
}

// Apply copies the set fields onto s.
func (u SettingsUpdate) Apply(s *config.Settings) {
	if u.NightMode != nil {
		s.NightMode = *u.NightMode
	}
	if u.MaxCaptureFrames != nil {
		s.MaxCaptureFrames = *u.MaxCaptureFrames
	}
	if u.GainMode != nil {
		s.GainMode = *u.GainMode
	}
	if u.ManualGain != nil {
		s.ManualGain = *u.ManualGain
	}
	if u.DenoiseMode != nil {
		s.DenoiseMode = *u.DenoiseMode
	}
	if u.DenoiseLevel != nil {
		s.DenoiseLevel = *u.DenoiseLevel
	}
	if u.Sharpness != nil {
		s.Sharpness = *u.Sharpness
	}
	if u.BandFilter != nil {
		s.BandFilter = *u.BandFilter
	}
	if u.ExposureBias != nil {
		s.ExposureBias = *u.ExposureBias
	}
	if u.HFlip != nil {
		s.HFlip = *u.HFlip
	}
	if u.VFlip != nil {
		s.VFlip = *u.VFlip
	}
	if u.FrameWidth != nil {
		s.FrameWidth = *u.FrameWidth
	}
	if u.FrameHeight != nil {
		s.FrameHeight = *u.FrameHeight
	}
	if u.FrameRate != nil {
		s.FrameRate = *u.FrameRate
	}
}

// ZoneRequest selects an AF zone. Width and Height default to the active
// frame size when zero.
type ZoneRequest struct {
	sensor.Window
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// ContinuousRequest enables or disables continuous autofocus.
type ContinuousRequest struct {
	Enabled bool `json:"enabled"`
}
