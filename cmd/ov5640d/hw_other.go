//go:build !linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// openHardware opens the periph.io bus. The ioctl backend and GPIO power
// sequencing are only available on Linux.
func openHardware(st config.Settings) (hwHandles, error) {
	if st.Backend != config.BackendPeriph {
		return hwHandles{}, fmt.Errorf("bus backend %q is not supported on this platform", st.Backend)
	}
	b := hardware.NewPeriph(st.Bus, st.Address)
	if err := b.Open(); err != nil {
		return hwHandles{}, err
	}
	return hwHandles{bus: b, close: func() {
		if err := b.Close(); err != nil {
			slog.Warn("closing sensor bus", "err", err)
		}
	}}, nil
}
