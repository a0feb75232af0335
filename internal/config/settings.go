package config

import (
	"errors"
	"fmt"

	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// ErrInvalidSettings is returned by Validate.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Bus backends.
const (
	BackendRDWR   = "rdwr"
	BackendPeriph = "periph"
)

// Pins names the sensor control GPIOs. Empty names mean the line is not
// wired.
type Pins struct {
	PowerDown   string `yaml:"pwdn,omitempty" json:"pwdn,omitempty"`
	Reset       string `yaml:"reset,omitempty" json:"reset,omitempty"`
	PowerEnable string `yaml:"power_en,omitempty" json:"power_en,omitempty"`
}

// Settings is the persisted daemon configuration. The hardware fields are
// read once at startup; the tuning fields can change at runtime.
type Settings struct {
	Bus         string `yaml:"bus" json:"bus"`
	Backend     string `yaml:"backend" json:"backend"`
	Address     uint16 `yaml:"address" json:"address"`
	MCLKDivider uint32 `yaml:"mclk_divider" json:"mclk_divider"`
	Pins        Pins   `yaml:"pins" json:"pins"`
	Firmware    string `yaml:"af_firmware,omitempty" json:"af_firmware,omitempty"`
	AFPollMS    int    `yaml:"af_poll_ms" json:"af_poll_ms"`

	FrameWidth  int    `yaml:"frame_width" json:"frame_width"`
	FrameHeight int    `yaml:"frame_height" json:"frame_height"`
	FrameRate   uint32 `yaml:"frame_rate" json:"frame_rate"`

	NightMode        uint32 `yaml:"night_mode" json:"night_mode"`
	MaxCaptureFrames uint32 `yaml:"max_capture_frames" json:"max_capture_frames"`
	GainMode         string `yaml:"gain_mode" json:"gain_mode"`
	ManualGain       uint32 `yaml:"manual_gain" json:"manual_gain"`
	DenoiseMode      string `yaml:"denoise_mode" json:"denoise_mode"`
	DenoiseLevel     uint8  `yaml:"denoise_level" json:"denoise_level"`
	Sharpness        uint8  `yaml:"sharpness" json:"sharpness"`
	BandFilter       string `yaml:"band_filter" json:"band_filter"`
	ExposureBias     int    `yaml:"exposure_bias" json:"exposure_bias"`
	HFlip            bool   `yaml:"hflip" json:"hflip"`
	VFlip            bool   `yaml:"vflip" json:"vflip"`
}

// DefaultSettings returns the power-on configuration.
func DefaultSettings() Settings {
	p := sensor.DefaultCaptureParams()
	return Settings{
		Bus:              "/dev/i2c-1",
		Backend:          BackendRDWR,
		Address:          0x3c,
		MCLKDivider:      1,
		AFPollMS:         100,
		FrameWidth:       640,
		FrameHeight:      480,
		FrameRate:        30,
		NightMode:        p.NightMode,
		MaxCaptureFrames: p.MaxCaptureFrames,
		GainMode:         p.GainMode.String(),
		ManualGain:       p.ManualGain,
		DenoiseMode:      p.DenoiseMode.String(),
		DenoiseLevel:     p.DenoiseLevel,
		Sharpness:        0x18,
		BandFilter:       sensor.BandFilter50Hz.String(),
	}
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if s.Backend != BackendRDWR && s.Backend != BackendPeriph {
		return fmt.Errorf("%w: backend %q", ErrInvalidSettings, s.Backend)
	}
	if s.Address == 0 || s.Address > 0x7f {
		return fmt.Errorf("%w: address 0x%x is not a 7-bit address", ErrInvalidSettings, s.Address)
	}
	if s.MCLKDivider != 1 && s.MCLKDivider != 2 {
		return fmt.Errorf("%w: mclk_divider %d", ErrInvalidSettings, s.MCLKDivider)
	}
	if s.AFPollMS <= 0 {
		return fmt.Errorf("%w: af_poll_ms %d", ErrInvalidSettings, s.AFPollMS)
	}
	if s.FrameWidth <= 0 || s.FrameHeight <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidSettings, s.FrameWidth, s.FrameHeight)
	}
	if s.FrameRate < sensor.MinFrameRate || s.FrameRate > sensor.MaxFrameRate {
		return fmt.Errorf("%w: frame_rate %d", ErrInvalidSettings, s.FrameRate)
	}
	if s.ExposureBias < sensor.MinExposureBias || s.ExposureBias > sensor.MaxExposureBias {
		return fmt.Errorf("%w: exposure_bias %d", ErrInvalidSettings, s.ExposureBias)
	}
	if _, err := sensor.ParseBandFilter(s.BandFilter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	p, err := s.CaptureParams()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// CaptureParams converts the tuning fields to sensor capture parameters.
func (s Settings) CaptureParams() (sensor.CaptureParams, error) {
	p := sensor.CaptureParams{
		NightMode:        s.NightMode,
		MaxCaptureFrames: s.MaxCaptureFrames,
		ManualGain:       s.ManualGain,
		DenoiseLevel:     s.DenoiseLevel,
	}
	switch s.GainMode {
	case "auto", "":
		p.GainMode = sensor.GainAuto
	case "manual":
		p.GainMode = sensor.GainManual
	default:
		return p, fmt.Errorf("%w: gain_mode %q", ErrInvalidSettings, s.GainMode)
	}
	switch s.DenoiseMode {
	case "auto", "":
		p.DenoiseMode = sensor.DenoiseAuto
	case "fixed":
		p.DenoiseMode = sensor.DenoiseFixed
	default:
		return p, fmt.Errorf("%w: denoise_mode %q", ErrInvalidSettings, s.DenoiseMode)
	}
	return p, nil
}

// Band returns the configured band filter.
func (s Settings) Band() sensor.BandFilter {
	b, err := sensor.ParseBandFilter(s.BandFilter)
	if err != nil {
		return sensor.BandFilter50Hz
	}
	return b
}

// migrate fills fields missing from older files with their defaults.
func migrate(s *Settings) {
	def := DefaultSettings()
	if s.Bus == "" {
		s.Bus = def.Bus
	}
	if s.Backend == "" {
		s.Backend = def.Backend
	}
	if s.Address == 0 {
		s.Address = def.Address
	}
	if s.MCLKDivider == 0 {
		s.MCLKDivider = def.MCLKDivider
	}
	if s.AFPollMS == 0 {
		s.AFPollMS = def.AFPollMS
	}
	if s.FrameWidth == 0 || s.FrameHeight == 0 {
		s.FrameWidth, s.FrameHeight = def.FrameWidth, def.FrameHeight
	}
	if s.FrameRate == 0 {
		s.FrameRate = def.FrameRate
	}
	if s.MaxCaptureFrames == 0 {
		s.MaxCaptureFrames = def.MaxCaptureFrames
	}
	if s.GainMode == "" {
		s.GainMode = def.GainMode
	}
	if s.ManualGain == 0 {
		s.ManualGain = def.ManualGain
	}
	if s.DenoiseMode == "" {
		s.DenoiseMode = def.DenoiseMode
	}
	if s.DenoiseLevel == 0 {
		s.DenoiseLevel = def.DenoiseLevel
	}
	if s.BandFilter == "" {
		s.BandFilter = def.BandFilter
	}
}
