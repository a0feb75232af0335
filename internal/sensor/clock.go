package sensor

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// MCLK is the sensor input clock before the board divider.
const MCLK = 24 * physic.MegaHertz

// PLLFields are the clock tree dividers decoded from the PLL registers.
type PLLFields struct {
	PreDiv   uint32 // 0x3037[3:0], 0 treated as 1
	Mul      uint32 // 0x3036, rounded down to even when >= 128
	SysDiv   uint32 // 0x3035[7:4]
	PLLRDiv  uint32 // 0x3037[4] + 1
	BitDiv   uint32 // 0x3034[3:0]
	SCLKRDiv uint32 // 0x3108[1:0] as n<<n
}

// DecodePLL decodes the raw PLL register values.
func DecodePLL(ctrl0, ctrl1, ctrl2, ctrl3, rootDiv byte) PLLFields {
	f := PLLFields{
		PreDiv:  uint32(ctrl3 & 0x0f),
		Mul:     uint32(ctrl2),
		SysDiv:  uint32(ctrl1&0xf0) >> 4,
		PLLRDiv: uint32(ctrl3&0x10)>>4 + 1,
		BitDiv:  uint32(ctrl0 & 0x0f),
	}
	if f.PreDiv == 0 {
		f.PreDiv = 1
	}
	if f.Mul >= 128 {
		f.Mul = f.Mul / 2 * 2
	}
	n := uint32(rootDiv & 0x03)
	f.SCLKRDiv = n << n
	return f
}

// PixelClock returns the pixel clock in Hz for the given input clock. The
// evaluation order matches the sensor's integer datapath.
func (f PLLFields) PixelClock(mclk physic.Frequency, mclkDiv uint32) (uint64, error) {
	if f.PreDiv == 0 || f.SysDiv == 0 || f.PLLRDiv == 0 || f.SCLKRDiv == 0 || mclkDiv == 0 {
		return 0, fmt.Errorf("%w: pre=%d sys=%d pll_r=%d sclk=%d", ErrClockUnavailable,
			f.PreDiv, f.SysDiv, f.PLLRDiv, f.SCLKRDiv)
	}
	p := uint64(mclk/physic.Hertz) / uint64(mclkDiv) / uint64(f.PreDiv) * uint64(f.Mul) /
		uint64(f.SysDiv) / uint64(f.PLLRDiv)
	switch f.BitDiv {
	case 8:
		p /= 2
	case 10:
		p = p * 2 / 5
	}
	return p / uint64(f.SCLKRDiv), nil
}

// PixelClock reads the PLL registers and stores the derived pixel clock in
// the metering state. On failure the previous value is kept.
func (d *Device) PixelClock(ctx context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pixelClock(ctx)
}

func (d *Device) pixelClock(ctx context.Context) (uint64, error) {
	var raw [5]byte
	regs := [5]hardware.Register{
		hardware.RegSCPLLCtrl3,
		hardware.RegSCPLLCtrl2,
		hardware.RegSCPLLCtrl1,
		hardware.RegSCPLLCtrl0,
		hardware.RegSysRootDiv,
	}
	for i, r := range regs {
		v, err := d.bus.Read(ctx, r)
		if err != nil {
			return 0, err
		}
		raw[i] = v
	}
	f := DecodePLL(raw[3], raw[2], raw[1], raw[0], raw[4])
	slog.Debug("sensor: pll decoded", "pre_div", f.PreDiv, "mul", f.Mul, "sys_div", f.SysDiv,
		"pll_rdiv", f.PLLRDiv, "bit_div", f.BitDiv, "sclk_rdiv", f.SCLKRDiv)

	pclk, err := f.PixelClock(MCLK, d.mclkDiv)
	if err != nil {
		return 0, err
	}
	d.metering.PreviewPCLK = pclk
	return pclk, nil
}

// FrameRate reads the live frame timing and stores the preview frame rate in
// frames per second. A pixel clock failure is logged and the last known
// pixel clock is used.
func (d *Device) FrameRate(ctx context.Context) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameRate(ctx)
}

func (d *Device) frameRate(ctx context.Context) (uint32, error) {
	hts, err := hardware.Read16(ctx, d.bus, hardware.RegTimingHTSHi, hardware.RegTimingHTSLo)
	if err != nil {
		return 0, err
	}
	vts, err := hardware.Read16(ctx, d.bus, hardware.RegTimingVTSHi, hardware.RegTimingVTSLo)
	if err != nil {
		return 0, err
	}
	extra, err := hardware.Read16(ctx, d.bus, hardware.RegAECVTSHigh, hardware.RegAECVTSLow)
	if err != nil {
		return 0, err
	}
	if hts == 0 || vts+extra == 0 {
		return 0, fmt.Errorf("%w: hts=%d vts=%d extra=%d", ErrTimingUnavailable, hts, vts, extra)
	}

	if _, err := d.pixelClock(ctx); err != nil {
		slog.Warn("sensor: pixel clock refresh failed, using last value",
			"pclk", d.metering.PreviewPCLK, "err", err)
	}
	fps := d.metering.PreviewPCLK / (uint64(vts+extra) * uint64(hts))
	d.metering.PreviewFPS = uint32(fps)
	slog.Debug("sensor: preview frame rate", "fps", fps, "hts", hts, "vts", vts, "extra", extra)
	return uint32(fps), nil
}
