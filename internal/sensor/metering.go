package sensor

import (
	"context"
	"log/slog"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// MaxExposure is the largest exposure line count the three exposure
// registers can hold.
const MaxExposure = 0xfffff

// MeteringState is the preview metering baseline shared between preview and
// capture.
type MeteringState struct {
	Gain            byte   `json:"gain"`
	ExposureLow     byte   `json:"exposure_low"`
	ExposureMid     byte   `json:"exposure_mid"`
	ExposureHigh    byte   `json:"exposure_high"`
	Luminance       byte   `json:"luminance"`
	PreviewExpLines uint32 `json:"preview_exp_lines"`
	PreviewFPS      uint32 `json:"preview_fps"`
	PreviewPCLK     uint64 `json:"preview_pclk"`
}

func defaultMetering() MeteringState {
	return MeteringState{
		Gain:        0x28,
		ExposureMid: 0x3d,
		Luminance:   0xff,
	}
}

// Exposure returns the 20-bit exposure line count held by the triple.
func (m MeteringState) Exposure() uint32 {
	return UnpackExposure(m.ExposureLow, m.ExposureMid, m.ExposureHigh)
}

// PackExposure splits a 20-bit exposure into its low, mid and high register
// values. The low nibble of the low register is the fractional part.
func PackExposure(v uint32) [3]byte {
	v &= MaxExposure
	return [3]byte{byte(v << 4), byte(v >> 4), byte(v >> 12)}
}

// UnpackExposure is the inverse of PackExposure.
func UnpackExposure(lo, mid, hi byte) uint32 {
	return uint32(hi)<<12 | uint32(mid)<<4 | uint32(lo)>>4
}

// CapturePreviewMetering reads the live gain, exposure and frame length into
// the metering state. The state is left untouched unless every read
// succeeds.
func (d *Device) CapturePreviewMetering(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capturePreviewMetering(ctx)
}

func (d *Device) capturePreviewMetering(ctx context.Context) error {
	regs := [4]hardware.Register{
		hardware.RegAECGain,
		hardware.RegAECExpLow,
		hardware.RegAECExpMid,
		hardware.RegAECExpHigh,
	}
	var v [4]byte
	for i, r := range regs {
		b, err := d.bus.Read(ctx, r)
		if err != nil {
			return err
		}
		v[i] = b
	}
	vts, err := hardware.Read16(ctx, d.bus, hardware.RegTimingVTSHi, hardware.RegTimingVTSLo)
	if err != nil {
		return err
	}
	extra, err := hardware.Read16(ctx, d.bus, hardware.RegAECVTSHigh, hardware.RegAECVTSLow)
	if err != nil {
		return err
	}

	d.metering.Gain = v[0]
	d.metering.ExposureLow = v[1]
	d.metering.ExposureMid = v[2]
	d.metering.ExposureHigh = v[3]
	d.metering.PreviewExpLines = vts + extra
	slog.Debug("sensor: preview metering captured", "gain", v[0],
		"exposure", d.metering.Exposure(), "exp_lines", d.metering.PreviewExpLines)
	return nil
}

// RestorePreviewMetering writes the stored gain and exposure back to the
// sensor.
func (d *Device) RestorePreviewMetering(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restorePreviewMetering(ctx)
}

func (d *Device) restorePreviewMetering(ctx context.Context) error {
	m := d.metering
	return hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
		{Reg: hardware.RegAECGain, Val: m.Gain},
		{Reg: hardware.RegAECExpLow, Val: m.ExposureLow},
		{Reg: hardware.RegAECExpMid, Val: m.ExposureMid},
		{Reg: hardware.RegAECExpHigh, Val: m.ExposureHigh},
	})
}

// MeasureLuminance reads the average luminance into the metering state.
func (d *Device) MeasureLuminance(ctx context.Context) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measureLuminance(ctx)
}

func (d *Device) measureLuminance(ctx context.Context) (byte, error) {
	v, err := d.bus.Read(ctx, hardware.RegAverage)
	if err != nil {
		return 0, err
	}
	d.metering.Luminance = v
	return v, nil
}
