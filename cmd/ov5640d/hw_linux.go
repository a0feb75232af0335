//go:build linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// openHardware opens the configured I2C backend and, when any control pin is
// named, the GPIO power sequencer.
func openHardware(st config.Settings) (hwHandles, error) {
	var (
		bus     hardware.Bus
		closeFn func() error
	)
	switch st.Backend {
	case config.BackendRDWR:
		b := hardware.NewI2C(st.Bus, st.Address)
		if err := b.Open(); err != nil {
			return hwHandles{}, err
		}
		bus, closeFn = b, b.Close
	case config.BackendPeriph:
		b := hardware.NewPeriph(st.Bus, st.Address)
		if err := b.Open(); err != nil {
			return hwHandles{}, err
		}
		bus, closeFn = b, b.Close
	default:
		return hwHandles{}, fmt.Errorf("unknown bus backend %q", st.Backend)
	}

	h := hwHandles{bus: bus, close: func() {
		if err := closeFn(); err != nil {
			slog.Warn("closing sensor bus", "err", err)
		}
	}}
	if st.Pins == (config.Pins{}) {
		slog.Info("no sensor control pins configured, power sequencing disabled")
		return h, nil
	}
	power, err := hardware.NewGPIOPower(hardware.PowerPins{
		PowerDown:   st.Pins.PowerDown,
		Reset:       st.Pins.Reset,
		PowerEnable: st.Pins.PowerEnable,
	}, bus)
	if err != nil {
		h.close()
		return hwHandles{}, err
	}
	h.power = power
	return h, nil
}
