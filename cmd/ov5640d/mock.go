package main

import (
	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// mockFirmware stands in for the AF microcode on the simulated sensor.
var mockFirmware = []byte{0x02, 0x0f, 0xd6, 0x02, 0x0a, 0x39}

// openMock returns a simulated sensor that identifies as an OV5640, accepts
// one AF firmware download and streams a 30 fps preview from a 24 MHz clock.
func openMock() hwHandles {
	m := hardware.NewMock()
	m.SetReg(hardware.RegChipIDHigh, 0x56)
	m.SetReg(hardware.RegChipIDLow, 0x40)
	m.Script(hardware.RegAFFWStatus, 0x70) // MCU ready after the download

	m.SetReg(hardware.RegSCPLLCtrl0, 0x08)
	m.SetReg(hardware.RegSCPLLCtrl1, 0x20)
	m.SetReg(hardware.RegSCPLLCtrl2, 0x50)
	m.SetReg(hardware.RegSCPLLCtrl3, 0x01)
	m.SetReg(hardware.RegSysRootDiv, 0x01)
	m.SetReg16(hardware.RegTimingHTSHi, hardware.RegTimingHTSLo, 8000)
	m.SetReg16(hardware.RegTimingVTSHi, hardware.RegTimingVTSLo, 1000)
	m.SetReg(hardware.RegAECGain, 0x40)
	m.SetReg(hardware.RegAECExpMid, 0x3d)
	m.SetReg(hardware.RegAverage, 0x90)

	return hwHandles{
		bus:   m,
		power: hardware.NewMockPower(),
		close: func() {},
	}
}
