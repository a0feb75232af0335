package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// BandFilter is the mains flicker compensation mode.
type BandFilter int

const (
	bandUnset BandFilter = iota - 1
	BandFilter50Hz
	BandFilter60Hz
	BandFilterDisabled
	BandFilterAuto
)

func (b BandFilter) String() string {
	switch b {
	case BandFilter50Hz:
		return "50hz"
	case BandFilter60Hz:
		return "60hz"
	case BandFilterDisabled:
		return "disabled"
	case BandFilterAuto:
		return "auto"
	}
	return "unset"
}

// ParseBandFilter parses the names produced by BandFilter.String.
func ParseBandFilter(s string) (BandFilter, error) {
	switch s {
	case "50hz", "":
		return BandFilter50Hz, nil
	case "60hz":
		return BandFilter60Hz, nil
	case "disabled":
		return BandFilterDisabled, nil
	case "auto":
		return BandFilterAuto, nil
	}
	return bandUnset, fmt.Errorf("%w: band filter %q", ErrInvalidArgument, s)
}

// Frame rates SetFrameInterval accepts.
const (
	MaxFrameRate = nominalFPS
	MinFrameRate = nominalFPS / maxFrameDivider
)

const (
	nominalFPS      = 30
	maxFrameDivider = 15
	flipSettle      = 10 * time.Millisecond
	flipBits        = 0x06
	bandEnableBit   = 0x20
	band50HzBit     = 0x04
	bandManualBit   = 0x80
)

// SetBandFilter programs the banding filter. It is a no-op when the mode is
// already active. BandFilterAuto leaves the registers as they are.
func (d *Device) SetBandFilter(ctx context.Context, b BandFilter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBandFilter(ctx, b)
}

func (d *Device) setBandFilter(ctx context.Context, b BandFilter) error {
	if d.band == b {
		return nil
	}
	switch b {
	case BandFilterDisabled:
		if err := d.modify(ctx, hardware.RegAECCtrl00, 0, bandEnableBit); err != nil {
			return err
		}
	case BandFilter50Hz, BandFilter60Hz:
		sel := byte(0)
		if b == BandFilter50Hz {
			sel = band50HzBit
		}
		if err := hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
			{Reg: hardware.RegLightMeter1, Val: sel},
			{Reg: hardware.RegLightMeter2, Val: bandManualBit},
		}); err != nil {
			return err
		}
		if err := d.modify(ctx, hardware.RegAECCtrl00, bandEnableBit, 0); err != nil {
			return err
		}
	case BandFilterAuto:
	default:
		return fmt.Errorf("%w: band filter %d", ErrInvalidArgument, b)
	}
	d.band = b
	return nil
}

// BandFilter reads the active banding mode back from the sensor.
func (d *Device) BandFilter(ctx context.Context) (BandFilter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.bus.Read(ctx, hardware.RegAECCtrl00)
	if err != nil {
		return bandUnset, err
	}
	if v&bandEnableBit == 0 {
		return BandFilterDisabled, nil
	}
	sel, err := d.bus.Read(ctx, hardware.RegLightMeter1)
	if err != nil {
		return bandUnset, err
	}
	if sel&band50HzBit != 0 {
		return BandFilter50Hz, nil
	}
	return BandFilter60Hz, nil
}

// SetAutoGain enables or disables the automatic gain loop.
func (d *Device) SetAutoGain(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		return d.modify(ctx, hardware.RegAECManual, 0, hardware.AECManualGain)
	}
	return d.modify(ctx, hardware.RegAECManual, hardware.AECManualGain, 0)
}

// AutoGain reports whether the automatic gain loop is running.
func (d *Device) AutoGain(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.bus.Read(ctx, hardware.RegAECManual)
	if err != nil {
		return false, err
	}
	return v&hardware.AECManualGain == 0, nil
}

// SetAutoExposure enables or disables the automatic exposure loop.
func (d *Device) SetAutoExposure(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		return d.modify(ctx, hardware.RegAECManual, 0, hardware.AECManualExposure)
	}
	return d.modify(ctx, hardware.RegAECManual, hardware.AECManualExposure, 0)
}

// AutoExposure reports whether the automatic exposure loop is running.
func (d *Device) AutoExposure(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.bus.Read(ctx, hardware.RegAECManual)
	if err != nil {
		return false, err
	}
	return v&hardware.AECManualExposure == 0, nil
}

// SetExposureBias moves the AE target by bias steps in -4..4. The preview
// baseline is captured with the AE loop frozen before the target changes.
func (d *Device) SetExposureBias(ctx context.Context, bias int) error {
	if bias < MinExposureBias || bias > MaxExposureBias {
		return fmt.Errorf("%w: exposure bias %d not in %d..%d", ErrInvalidArgument, bias, MinExposureBias, MaxExposureBias)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expBias == bias {
		return nil
	}

	if err := d.bus.Write(ctx, hardware.RegAECManual, aecFreeze); err != nil {
		return err
	}
	if err := d.capturePreviewMetering(ctx); err != nil {
		// Hand the AE loop back before reporting the failure.
		if uerr := d.bus.Write(context.WithoutCancel(ctx), hardware.RegAECManual, 0x00); uerr != nil {
			slog.Warn("sensor: AEC/AGC left frozen after exposure bias failure", "err", uerr)
		}
		return fmt.Errorf("sensor: exposure bias baseline: %w", err)
	}
	if err := d.bus.Write(ctx, hardware.RegAECManual, 0x00); err != nil {
		return err
	}
	if err := hardware.WriteArray(ctx, d.bus, evTable[bias-MinExposureBias]); err != nil {
		return err
	}
	d.expBias = bias
	return nil
}

// ExposureBias returns the last applied exposure bias.
func (d *Device) ExposureBias() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expBias
}

// SetDenoise switches the ISP to manual denoise at the given level.
func (d *Device) SetDenoise(ctx context.Context, level byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setDenoise(ctx, level)
}

func (d *Device) setDenoise(ctx context.Context, level byte) error {
	if err := d.modify(ctx, hardware.RegISPCtrl08, hardware.ISPManualDenoise, 0); err != nil {
		return err
	}
	return d.bus.Write(ctx, hardware.RegDenoise, level)
}

// SetSharpness switches the ISP to manual sharpness at the given level.
func (d *Device) SetSharpness(ctx context.Context, level byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.modify(ctx, hardware.RegISPCtrl08, hardware.ISPManualSharpness, 0); err != nil {
		return err
	}
	return d.bus.Write(ctx, hardware.RegSharpness, level)
}

// SetFlip mirrors (horizontal) or flips (vertical) the image.
func (d *Device) SetFlip(ctx context.Context, horizontal, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, reg := &d.vflip, hardware.RegTimingVFlip
	if horizontal {
		cur, reg = &d.hflip, hardware.RegTimingHFlip
	}
	if *cur == enabled {
		return nil
	}
	var err error
	if enabled {
		err = d.modify(ctx, reg, flipBits, 0)
	} else {
		err = d.modify(ctx, reg, 0, flipBits)
	}
	if err != nil {
		return err
	}
	d.sleep(flipSettle)
	*cur = enabled
	return nil
}

// SetFrameInterval sets the preview frame interval as numerator/denominator
// seconds. A zero interval resets to the nominal 30 fps. Rates below 30 fps
// put the capture timing into low-speed mode.
func (d *Device) SetFrameInterval(numerator, denominator uint32) error {
	if numerator == 0 || denominator == 0 {
		numerator, denominator = 1, nominalFPS
	}
	fps := denominator / numerator
	if fps == 0 {
		return fmt.Errorf("%w: frame interval %d/%d", ErrInvalidArgument, numerator, denominator)
	}
	div := nominalFPS / fps
	if div == 0 || div > maxFrameDivider {
		return fmt.Errorf("%w: frame interval %d/%d", ErrInvalidArgument, numerator, denominator)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameDiv = div
	d.lowSpeed = nominalFPS/div < nominalFPS
	slog.Debug("sensor: frame interval set", "fps", nominalFPS/div, "low_speed", d.lowSpeed)
	return nil
}

// FrameInterval returns the active frame interval in seconds as a fraction.
func (d *Device) FrameInterval() (numerator, denominator uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameDiv, nominalFPS
}

// SetFrameSize records the active output size used for AF zone mapping and
// refreshes the pixel clock for the new mode.
func (d *Device) SetFrameSize(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidArgument, width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	if _, err := d.pixelClock(ctx); err != nil {
		slog.Warn("sensor: pixel clock refresh after frame size change failed", "err", err)
	}
	return nil
}

// FrameSize returns the active output size.
func (d *Device) FrameSize() (width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Lock3A pauses autofocus when focusLocked is set and relaunches the default
// AF zone otherwise.
func (d *Device) Lock3A(ctx context.Context, focusLocked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if focusLocked {
		return d.pauseAF(ctx)
	}
	return d.relaunchAFZone(ctx)
}

// modify sets then clears bits of reg with a read-modify-write.
func (d *Device) modify(ctx context.Context, reg hardware.Register, set, unset byte) error {
	v, err := d.bus.Read(ctx, reg)
	if err != nil {
		return err
	}
	return d.bus.Write(ctx, reg, (v|set)&^unset)
}
