package sensor

import "github.com/micro-nova/ov5640-go/internal/hardware"

// Exposure bias range.
const (
	MinExposureBias = -4
	MaxExposureBias = 4
)

// aecFreeze puts AEC, AGC and VTS into manual so the live values hold still.
const aecFreeze = 0x07

// ae builds one AE target row: stable-in high/low, stable-out high/low and
// the fast zone high/low limits.
func ae(hi, lo, high, low byte) []hardware.RegVal {
	return []hardware.RegVal{
		{Reg: hardware.RegAECStableHi, Val: hi},
		{Reg: hardware.RegAECStableLo, Val: lo},
		{Reg: hardware.RegAECStableHi2, Val: hi},
		{Reg: hardware.RegAECStableLo2, Val: lo},
		{Reg: hardware.RegAECFastHi, Val: high},
		{Reg: hardware.RegAECFastLo, Val: low},
	}
}

// evTable holds the AE target for bias -4..4.
var evTable = [MaxExposureBias - MinExposureBias + 1][]hardware.RegVal{
	ae(0x10, 0x08, 0x20, 0x10),
	ae(0x18, 0x10, 0x30, 0x10),
	ae(0x20, 0x18, 0x41, 0x10),
	ae(0x30, 0x28, 0x51, 0x10),
	ae(0x38, 0x30, 0x61, 0x10),
	ae(0x48, 0x40, 0x80, 0x20),
	ae(0x50, 0x48, 0x90, 0x20),
	ae(0x58, 0x50, 0x91, 0x20),
	ae(0x60, 0x58, 0xa0, 0x20),
}
