package sensor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// Capture timing mode constants.
const (
	captureFPS10   = 75   // 7.5 fps, x10
	captureLines   = 1968 // nominal capture frame length
	maxCaptureGain = 0xf8
	minCaptureGain = 0x10
	maxVTS         = 0xffff
)

// Capture parameter limits.
const (
	MaxNightMode     = 16
	MaxCaptureFrames = maxVTS / captureLines
)

// GainMode selects how the capture gain is chosen.
type GainMode int

const (
	// GainAuto derives gain from scene luminance and caps exposure at the
	// frame budget.
	GainAuto GainMode = iota
	// GainManual uses CaptureParams.ManualGain.
	GainManual
)

func (m GainMode) String() string {
	if m == GainManual {
		return "manual"
	}
	return "auto"
}

// DenoiseMode selects how the capture denoise strength is chosen.
type DenoiseMode int

const (
	DenoiseAuto DenoiseMode = iota // 1 + gain²/256
	DenoiseFixed
)

func (m DenoiseMode) String() string {
	if m == DenoiseFixed {
		return "fixed"
	}
	return "auto"
}

// CaptureParams configure the preview-to-capture transfer.
type CaptureParams struct {
	NightMode        uint32 // 0 disables, otherwise exposure multiplier
	MaxCaptureFrames uint32 // exposure ceiling in capture frames
	GainMode         GainMode
	ManualGain       uint32
	DenoiseMode      DenoiseMode
	DenoiseLevel     byte
}

// DefaultCaptureParams returns the power-on capture parameters.
func DefaultCaptureParams() CaptureParams {
	return CaptureParams{
		MaxCaptureFrames: 4,
		GainMode:         GainAuto,
		ManualGain:       0x10,
		DenoiseMode:      DenoiseAuto,
		DenoiseLevel:     0x08,
	}
}

// Validate reports whether the parameters are usable.
func (p CaptureParams) Validate() error {
	if p.NightMode > MaxNightMode {
		return fmt.Errorf("%w: night mode %d > %d", ErrInvalidArgument, p.NightMode, MaxNightMode)
	}
	if p.MaxCaptureFrames == 0 || p.MaxCaptureFrames > MaxCaptureFrames {
		return fmt.Errorf("%w: max capture frames %d not in 1..%d", ErrInvalidArgument, p.MaxCaptureFrames, MaxCaptureFrames)
	}
	if p.ManualGain == 0 || p.ManualGain > 0xff {
		return fmt.Errorf("%w: manual gain 0x%x not in 0x01..0xff", ErrInvalidArgument, p.ManualGain)
	}
	if p.GainMode != GainAuto && p.GainMode != GainManual {
		return fmt.Errorf("%w: gain mode %d", ErrInvalidArgument, p.GainMode)
	}
	if p.DenoiseMode != DenoiseAuto && p.DenoiseMode != DenoiseFixed {
		return fmt.Errorf("%w: denoise mode %d", ErrInvalidArgument, p.DenoiseMode)
	}
	return nil
}

// CaptureTiming is the result of one preview-to-capture transfer.
type CaptureTiming struct {
	VTS          uint32 `json:"vts"`
	VTSDiff      uint32 `json:"vts_diff"`
	BandingStep  uint32 `json:"banding_step"`
	LinesPer10ms uint32 `json:"lines_per_10ms"`
	Gain         uint32 `json:"gain"`
	Exposure     uint32 `json:"exposure"`
	Denoise      byte   `json:"denoise"`
}

// gainStep is one preview-gain rule inside a luminance bracket: when the
// preview gain exceeds Above, the result is Fixed, or previewGain/Div when
// Div is nonzero.
type gainStep struct {
	Above int
	Fixed uint32
	Div   uint32
}

// gainBracket applies when luminance exceeds LumAbove. Steps are tried in
// order; the last step has Above = -1 and always matches.
type gainBracket struct {
	LumAbove int
	Steps    [3]gainStep
}

// captureGainTable is the luminance calibration of the capture gain.
var captureGainTable = [...]gainBracket{
	{LumAbove: 0xa0, Steps: [3]gainStep{{0x40, 0x20, 0}, {0x20, 0x18, 0}, {-1, 0x10, 0}}},
	{LumAbove: 0x80, Steps: [3]gainStep{{0x40, 0x30, 0}, {0x20, 0x28, 0}, {-1, 0x20, 0}}},
	{LumAbove: 0x40, Steps: [3]gainStep{{0x60, 0, 3}, {0x40, 0, 2}, {-1, 0, 1}}},
	{LumAbove: 0x20, Steps: [3]gainStep{{0x60, 0, 6}, {0x20, 0, 2}, {-1, 0, 1}}},
	{LumAbove: -1, Steps: [3]gainStep{{0xf0, 0x10, 0}, {0xe0, 0x14, 0}, {-1, 0x18, 0}}},
}

// CaptureGainFromLuminance maps the preview gain and measured luminance to a
// capture gain target. The result is never below 0x10.
func CaptureGainFromLuminance(previewGain, lum byte) uint32 {
	gain := uint32(0x18)
	for _, b := range captureGainTable {
		if int(lum) <= b.LumAbove {
			continue
		}
		for _, s := range b.Steps {
			if int(previewGain) <= s.Above {
				continue
			}
			if s.Div != 0 {
				gain = uint32(previewGain) / s.Div
			} else {
				gain = s.Fixed
			}
			break
		}
		break
	}
	return max(gain, minCaptureGain)
}

// TransferInput is everything the transfer computation reads.
type TransferInput struct {
	Metering   MeteringState
	Params     CaptureParams
	BandFilter BandFilter
	LowSpeed   bool
	MCLKDiv    uint32
}

// ComputeTiming converts a preview metering baseline into capture timing
// without touching the bus.
func ComputeTiming(in TransferInput) (CaptureTiming, error) {
	var t CaptureTiming

	div := uint64(max(in.MCLKDiv, 1))
	capFPS := uint64(captureFPS10) / div
	if in.LowSpeed {
		capFPS /= 2
	}
	period := uint64(10000)
	if in.BandFilter == BandFilter60Hz {
		period = 12000
	}
	lines10ms := capFPS * captureLines * 1000 / period
	t.LinesPer10ms = uint32(lines10ms)

	m := in.Metering
	previewFPS10 := uint64(m.PreviewFPS) * 10
	if m.PreviewExpLines == 0 || previewFPS10 == 0 {
		return t, fmt.Errorf("%w: exp_lines=%d fps=%d", ErrMeteringUnavailable, m.PreviewExpLines, m.PreviewFPS)
	}
	if lines10ms == 0 {
		return t, fmt.Errorf("%w: zero lines per banding period", ErrTimingUnavailable)
	}

	night := uint64(1)
	if in.Params.NightMode != 0 {
		night = uint64(in.Params.NightMode)
	}
	previewGain := uint64(m.Gain)
	exposure := night * (uint64(m.Exposure()) * capFPS * captureLines) /
		(uint64(m.PreviewExpLines) * previewFPS10)

	var gain, product uint64
	switch in.Params.GainMode {
	case GainManual:
		gain = uint64(in.Params.ManualGain)
		if gain == 0 {
			return t, fmt.Errorf("%w: manual gain is zero", ErrInvalidArgument)
		}
		exposure = exposure * previewGain / gain
		product = exposure * gain
	default:
		gain = uint64(CaptureGainFromLuminance(m.Gain, m.Luminance))
		exposure = exposure * previewGain / gain
		product = exposure * gain
		ceiling := uint64(max(in.Params.MaxCaptureFrames, 1)) * captureLines
		if exposure > ceiling {
			gain = product / ceiling
			exposure = ceiling
		}
		gain = min(gain, maxCaptureGain)
	}

	// The frame length limit moves the remaining exposure into gain.
	if exposure > maxVTS {
		slog.Debug("sensor: capture exposure clamped to frame length limit", "exposure", exposure)
		exposure = maxVTS
		gain = min(product/exposure, maxCaptureGain)
	}

	step := uint64(1)
	if exposure*1000 > lines10ms {
		step = exposure * 1000 / lines10ms
	}
	t.BandingStep = uint32(step)

	if exposure == 0 {
		exposure = 1
	}

	// A negative residual always re-derives the gain.
	residual := int64(exposure*1000) - int64(step*lines10ms)
	if residual < 0 || residual*16 > int64(lines10ms) {
		gain = product / exposure
	}
	gain = min(gain, maxCaptureGain)

	t.VTS, t.VTSDiff = captureLines, 0
	if exposure > captureLines {
		t.VTS = uint32(exposure)
		t.VTSDiff = uint32(exposure - captureLines)
	}
	t.Gain = uint32(gain)
	t.Exposure = uint32(exposure)

	if in.Params.DenoiseMode == DenoiseFixed {
		t.Denoise = in.Params.DenoiseLevel
	} else {
		t.Denoise = byte(1 + gain*gain/256)
	}
	return t, nil
}

// ComputeCaptureExposure derives the capture exposure from the preview
// baseline and programs it. Once the first register is written the sequence
// runs to completion regardless of ctx; a failed write aborts without
// rolling back earlier writes.
func (d *Device) ComputeCaptureExposure(ctx context.Context) (CaptureTiming, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.Lock()
	defer d.bus.Unlock()
	return d.computeCaptureExposure(ctx)
}

func (d *Device) computeCaptureExposure(ctx context.Context) (CaptureTiming, error) {
	t, err := ComputeTiming(d.transferInput())
	if err != nil {
		return t, err
	}
	if err := ctx.Err(); err != nil {
		return t, err
	}
	wctx := context.WithoutCancel(ctx)

	exp := PackExposure(t.Exposure)
	vtsHi, vtsLo := hardware.SplitBE16(t.VTS)
	diffHi, diffLo := hardware.SplitBE16(t.VTSDiff)
	seq := []hardware.RegVal{
		{Reg: hardware.RegTimingVTSHi, Val: vtsHi},
		{Reg: hardware.RegTimingVTSLo, Val: vtsLo},
		{Reg: hardware.RegAECVTSHigh, Val: diffHi},
		{Reg: hardware.RegAECVTSLow, Val: diffLo},
		{Reg: hardware.RegAECGain, Val: byte(t.Gain)},
		{Reg: hardware.RegAECExpLow, Val: exp[0]},
		{Reg: hardware.RegAECExpMid, Val: exp[1]},
		{Reg: hardware.RegAECExpHigh, Val: exp[2]},
	}
	if err := hardware.WriteArray(wctx, d.bus, seq); err != nil {
		return t, fmt.Errorf("sensor: write capture exposure: %w", err)
	}
	if err := d.setDenoise(wctx, t.Denoise); err != nil {
		return t, fmt.Errorf("sensor: write capture denoise: %w", err)
	}

	slog.Info("sensor: capture exposure applied", "gain", fmt.Sprintf("0x%02x", t.Gain),
		"exposure", t.Exposure, "vts", t.VTS, "vts_diff", t.VTSDiff, "banding_step", t.BandingStep)
	return t, nil
}

func (d *Device) transferInput() TransferInput {
	return TransferInput{
		Metering:   d.metering,
		Params:     d.params,
		BandFilter: d.band,
		LowSpeed:   d.lowSpeed,
		MCLKDiv:    d.mclkDiv,
	}
}

// Capture refreshes the preview baseline and applies the capture exposure in
// one locked sequence.
func (d *Device) Capture(ctx context.Context) (CaptureTiming, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.Lock()
	defer d.bus.Unlock()

	if err := d.capturePreviewMetering(ctx); err != nil {
		return CaptureTiming{}, fmt.Errorf("sensor: capture preview metering: %w", err)
	}
	if _, err := d.frameRate(ctx); err != nil {
		return CaptureTiming{}, fmt.Errorf("sensor: preview frame rate: %w", err)
	}
	if _, err := d.measureLuminance(ctx); err != nil {
		return CaptureTiming{}, fmt.Errorf("sensor: measure luminance: %w", err)
	}
	return d.computeCaptureExposure(ctx)
}

// CaptureParams returns the current capture parameters.
func (d *Device) CaptureParams() CaptureParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

// SetCaptureParams validates and installs new capture parameters.
func (d *Device) SetCaptureParams(p CaptureParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = p
	return nil
}

// SetNightMode sets the low-light exposure multiplier (0 disables).
func (d *Device) SetNightMode(n uint32) error {
	return d.updateParams(func(p *CaptureParams) { p.NightMode = n })
}

// SetMaxCaptureFrames sets the capture exposure ceiling in frames.
func (d *Device) SetMaxCaptureFrames(n uint32) error {
	return d.updateParams(func(p *CaptureParams) { p.MaxCaptureFrames = n })
}

// SetGainMode selects auto or manual capture gain.
func (d *Device) SetGainMode(m GainMode, manualGain uint32) error {
	return d.updateParams(func(p *CaptureParams) {
		p.GainMode = m
		if m == GainManual {
			p.ManualGain = manualGain
		}
	})
}

// SetDenoiseMode selects auto or fixed capture denoise.
func (d *Device) SetDenoiseMode(m DenoiseMode, level byte) error {
	return d.updateParams(func(p *CaptureParams) {
		p.DenoiseMode = m
		if m == DenoiseFixed {
			p.DenoiseLevel = level
		}
	})
}

func (d *Device) updateParams(fn func(*CaptureParams)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.params
	fn(&p)
	if err := p.Validate(); err != nil {
		return err
	}
	d.params = p
	return nil
}
