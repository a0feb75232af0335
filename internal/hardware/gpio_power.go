//go:build linux

package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PowerPins names the sensor control lines (periph pin names, e.g. "GPIO17").
// PowerEnable may be empty on boards where the sensor rail is always on.
type PowerPins struct {
	PowerDown   string // PWDN, active high
	Reset       string // RESETB, active low
	PowerEnable string // regulator enable, active high
}

// GPIOPower drives the sensor power lines through periph.io GPIO.
type GPIOPower struct {
	lock  sync.Locker
	pwdn  gpio.PinIO
	reset gpio.PinIO
	pwren gpio.PinIO
	sleep func(time.Duration)
}

// NewGPIOPower resolves the pins and returns a power sequencer. lock is held
// around full power-state transitions so no bus traffic overlaps them; it is
// normally the sensor Bus.
func NewGPIOPower(pins PowerPins, lock sync.Locker) (*GPIOPower, error) {
	// Initialize periph.io GPIO host driver
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	p := &GPIOPower{lock: lock, sleep: time.Sleep}

	p.pwdn = gpioreg.ByName(pins.PowerDown)
	if p.pwdn == nil {
		return nil, fmt.Errorf("gpio: failed to open %s (PWDN)", pins.PowerDown)
	}
	p.reset = gpioreg.ByName(pins.Reset)
	if p.reset == nil {
		return nil, fmt.Errorf("gpio: failed to open %s (RESET)", pins.Reset)
	}
	if pins.PowerEnable != "" {
		p.pwren = gpioreg.ByName(pins.PowerEnable)
		if p.pwren == nil {
			return nil, fmt.Errorf("gpio: failed to open %s (POWER_EN)", pins.PowerEnable)
		}
	}
	return p, nil
}

// PowerCycle pulses PWDN: high for 10ms, then low with a 10ms settle.
// It does not take the bus lock; callers already hold it during the
// autofocus firmware handshake.
func (p *GPIOPower) PowerCycle(ctx context.Context) error {
	if err := p.pwdn.Out(gpio.High); err != nil {
		return fmt.Errorf("gpio: failed to assert PWDN: %w", err)
	}
	p.sleep(10 * time.Millisecond)
	if err := p.pwdn.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: failed to release PWDN: %w", err)
	}
	p.sleep(10 * time.Millisecond)
	slog.Debug("gpio: sensor power cycled")
	return nil
}

// PowerOn brings the sensor out of full power-down:
//  1. PWDN low, RESET low, POWER_EN high
//  2. wait 20ms for the rails, release PWDN
//  3. hold RESET low 30ms, release it and wait 30ms for the sensor to boot
//
// MCLK must already be running when RESET is released.
func (p *GPIOPower) PowerOn(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.pwdn.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: PWDN low: %w", err)
	}
	if err := p.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: RESET low: %w", err)
	}
	if p.pwren != nil {
		if err := p.pwren.Out(gpio.High); err != nil {
			return fmt.Errorf("gpio: POWER_EN high: %w", err)
		}
	}
	p.sleep(20 * time.Millisecond)
	if err := p.pwdn.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: PWDN low: %w", err)
	}
	p.sleep(20 * time.Millisecond)
	if err := p.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: RESET low: %w", err)
	}
	p.sleep(30 * time.Millisecond)
	if err := p.reset.Out(gpio.High); err != nil {
		return fmt.Errorf("gpio: RESET high: %w", err)
	}
	p.sleep(30 * time.Millisecond)

	slog.Debug("gpio: sensor powered on")
	return nil
}

// PowerOff asserts RESET and drops the sensor rail.
func (p *GPIOPower) PowerOff(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.sleep(10 * time.Millisecond)
	if err := p.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: RESET low: %w", err)
	}
	p.sleep(10 * time.Millisecond)
	if p.pwren != nil {
		if err := p.pwren.Out(gpio.Low); err != nil {
			return fmt.Errorf("gpio: POWER_EN low: %w", err)
		}
	}
	p.sleep(20 * time.Millisecond)

	slog.Debug("gpio: sensor powered off")
	return nil
}

// Standby toggles hardware standby through PWDN.
func (p *GPIOPower) Standby(ctx context.Context, on bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if on {
		if err := p.pwdn.Out(gpio.High); err != nil {
			return fmt.Errorf("gpio: PWDN high: %w", err)
		}
		p.sleep(30 * time.Millisecond)
		return nil
	}
	p.sleep(30 * time.Millisecond)
	if err := p.pwdn.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: PWDN low: %w", err)
	}
	p.sleep(10 * time.Millisecond)
	return nil
}

var _ Power = (*GPIOPower)(nil)
