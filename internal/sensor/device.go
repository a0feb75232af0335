// Package sensor implements the OV5640 control core: pixel clock and frame
// timing derivation, the preview metering store, the preview-to-capture
// exposure/gain transfer and the autofocus firmware state machine.
//
// All state lives in a Device; independent Devices never share state. Every
// exported method is serialized by the Device's own lock, and the multi-step
// sequences (capture exposure, firmware download) additionally hold the bus
// lock for their full duration.
package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// Chip identity read from RegChipIDHigh/RegChipIDLow.
const (
	chipIDHigh byte = 0x56
	chipIDLow  byte = 0x40
)

// PowerCycler pulses the sensor power-down line. hardware.Power satisfies it.
type PowerCycler interface {
	PowerCycle(ctx context.Context) error
}

// Option configures a Device.
type Option func(*Device)

// WithSleep replaces time.Sleep for every fixed delay the device performs.
func WithSleep(fn func(time.Duration)) Option {
	return func(d *Device) { d.sleep = fn }
}

// WithMCLKDivider sets the board's input clock divider (1 or 2).
func WithMCLKDivider(div uint32) Option {
	return func(d *Device) {
		if div > 0 {
			d.mclkDiv = div
		}
	}
}

// WithFirmware sets the autofocus MCU image downloaded by DownloadFirmware.
func WithFirmware(img []byte) Option {
	return func(d *Device) { d.firmware = img }
}

// WithCaptureParams overrides the default capture parameters. Init restores
// these values.
func WithCaptureParams(p CaptureParams) Option {
	return func(d *Device) { d.baseParams = p }
}

// Device is one OV5640 sensor instance.
type Device struct {
	mu sync.Mutex

	bus      hardware.Bus
	power    PowerCycler
	sleep    func(time.Duration)
	mclkDiv  uint32
	firmware []byte

	metering   MeteringState
	af         AFContext
	params     CaptureParams
	baseParams CaptureParams
	band       BandFilter
	lowSpeed   bool
	frameDiv   uint32
	width      int
	height     int
	hflip      bool
	vflip      bool
	expBias    int
}

// New creates a device context on bus. power may be nil on boards without a
// controllable power-down line; the firmware handshake then retries without
// cycling power.
func New(bus hardware.Bus, power PowerCycler, opts ...Option) *Device {
	d := &Device{
		bus:        bus,
		power:      power,
		sleep:      time.Sleep,
		mclkDiv:    1,
		baseParams: DefaultCaptureParams(),
	}
	for _, o := range opts {
		o(d)
	}
	d.reset()
	return d
}

// reset restores the power-on defaults of the device context.
func (d *Device) reset() {
	d.metering = defaultMetering()
	d.af = AFContext{Status: FocusIdle, Mode: FocusSingle, FirstFlag: true}
	d.params = d.baseParams
	d.band = bandUnset
	d.lowSpeed = false
	d.frameDiv = 1
	d.width, d.height = 0, 0
	d.hflip, d.vflip = false, false
	d.expBias = 0
}

// Detect verifies the chip ID registers.
func (d *Device) Detect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detect(ctx)
}

func (d *Device) detect(ctx context.Context) error {
	hi, err := d.bus.Read(ctx, hardware.RegChipIDHigh)
	if err != nil {
		return err
	}
	lo, err := d.bus.Read(ctx, hardware.RegChipIDLow)
	if err != nil {
		return err
	}
	if hi != chipIDHigh || lo != chipIDLow {
		return fmt.Errorf("%w: read 0x%02x%02x", ErrNotDetected, hi, lo)
	}
	return nil
}

// Init detects the sensor, resets the device context to its defaults and
// programs the default 50 Hz band filter.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.detect(ctx); err != nil {
		return err
	}
	d.reset()
	if err := d.setBandFilter(ctx, BandFilter50Hz); err != nil {
		return fmt.Errorf("sensor: init band filter: %w", err)
	}
	slog.Info("sensor: initialized", "mclk_div", d.mclkDiv)
	return nil
}

// Status is a point-in-time copy of the device context.
type Status struct {
	Metering     MeteringState
	AF           AFContext
	Params       CaptureParams
	BandFilter   BandFilter
	LowSpeed     bool
	FrameDivider uint32
	Width        int
	Height       int
	HFlip        bool
	VFlip        bool
	ExposureBias int
}

// Status returns a copy of the current device context.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	band := d.band
	if band == bandUnset {
		band = BandFilter50Hz
	}
	return Status{
		Metering:     d.metering,
		AF:           d.af,
		Params:       d.params,
		BandFilter:   band,
		LowSpeed:     d.lowSpeed,
		FrameDivider: d.frameDiv,
		Width:        d.width,
		Height:       d.height,
		HFlip:        d.hflip,
		VFlip:        d.vflip,
		ExposureBias: d.expBias,
	}
}

// Metering returns a copy of the metering state.
func (d *Device) Metering() MeteringState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metering
}

// AF returns a copy of the autofocus context.
func (d *Device) AF() AFContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.af
}
