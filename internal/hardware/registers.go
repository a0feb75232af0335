package hardware

// OV5640 register map used by the control core.
const (
	// System control
	RegSystemCtrl0 Register = 0x3000 // MCU reset (0x20 = hold MCU in reset)
	RegChipIDHigh  Register = 0x300a // reads 0x56
	RegChipIDLow   Register = 0x300b // reads 0x40

	// PLL / clock
	RegSCPLLCtrl0 Register = 0x3034 // [3:0] MIPI bit mode divider
	RegSCPLLCtrl1 Register = 0x3035 // [7:4] system clock divider
	RegSCPLLCtrl2 Register = 0x3036 // PLL multiplier
	RegSCPLLCtrl3 Register = 0x3037 // [4] PLL root divider, [3:0] PLL pre-divider
	RegSysRootDiv Register = 0x3108 // [1:0] SCLK root divider

	// Autofocus MCU
	RegAFCmdMain  Register = 0x3022 // AF command
	RegAFCmdAck   Register = 0x3023 // AF command parameter / acknowledge
	RegAFCmdPara0 Register = 0x3024 // AF zone x center
	RegAFCmdPara1 Register = 0x3025 // AF zone y center
	RegAFCmdPara2 Register = 0x3026
	RegAFCmdPara3 Register = 0x3027
	RegAFCmdPara4 Register = 0x3028 // AF result (0 = failed)
	RegAFFWStatus Register = 0x3029 // AF firmware status
	RegAFFirmware Register = 0x8000 // AF firmware image base

	// Exposure / gain
	RegAECExpHigh Register = 0x3500 // exposure [19:16] in [3:0]
	RegAECExpMid  Register = 0x3501 // exposure [15:8]
	RegAECExpLow  Register = 0x3502 // exposure [7:0], low nibble fraction
	RegAECManual  Register = 0x3503 // bit0 = manual AEC, bit1 = manual AGC
	RegAECGain    Register = 0x350b // real gain [7:0]
	RegAECVTSHigh Register = 0x350c // vts extension high
	RegAECVTSLow  Register = 0x350d // vts extension low

	// Timing
	RegTimingVFlip Register = 0x3820
	RegTimingHFlip Register = 0x3821
	RegTimingHTSHi Register = 0x380c
	RegTimingHTSLo Register = 0x380d
	RegTimingVTSHi Register = 0x380e
	RegTimingVTSLo Register = 0x380f

	// AEC targets and banding
	RegAECCtrl00    Register = 0x3a00 // bit5 = banding filter enable
	RegAECStableHi  Register = 0x3a0f // stable range high limit (enter)
	RegAECStableLo  Register = 0x3a10 // stable range low limit (enter)
	RegAECFastHi    Register = 0x3a11 // fast zone high limit
	RegAECStableHi2 Register = 0x3a1b // stable range high limit (go out)
	RegAECStableLo2 Register = 0x3a1e // stable range low limit (go out)
	RegAECFastLo    Register = 0x3a1f // fast zone low limit
	RegLightMeter1  Register = 0x3c00 // bit2 = 50Hz when manual band select
	RegLightMeter2  Register = 0x3c01 // bit7 = manual band select

	// ISP
	RegSharpness Register = 0x5302
	RegDenoise   Register = 0x5306
	RegISPCtrl08 Register = 0x5308 // bit4 = manual denoise, bit6 = manual sharpness
	RegAverage   Register = 0x56a1 // average luminance
)

// Bit masks of RegISPCtrl08.
const (
	ISPManualDenoise   byte = 0x10
	ISPManualSharpness byte = 0x40
)

// Bit masks of RegAECManual.
const (
	AECManualExposure byte = 0x01
	AECManualGain     byte = 0x02
)

// SplitBE16 splits a 16-bit value into its high and low bytes.
func SplitBE16(v uint32) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// JoinBE16 combines a high and a low byte into a 16-bit value.
func JoinBE16(hi, lo byte) uint32 {
	return uint32(hi)<<8 | uint32(lo)
}
