package sensor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/micro-nova/ov5640-go/internal/hardware"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

func TestCaptureGainFromLuminance(t *testing.T) {
	tests := []struct {
		lum, gain byte
		want      uint32
	}{
		// lum > 0xa0
		{0xb0, 0x50, 0x20},
		{0xa1, 0x41, 0x20},
		{0xa1, 0x40, 0x18},
		{0xa1, 0x21, 0x18},
		{0xa1, 0x20, 0x10},
		// 0x80 < lum <= 0xa0
		{0xa0, 0x41, 0x30},
		{0x81, 0x30, 0x28},
		{0x81, 0x10, 0x20},
		// 0x40 < lum <= 0x80
		{0x80, 0x90, 0x30},
		{0x50, 0x61, 0x20},
		{0x50, 0x60, 0x30},
		{0x50, 0x41, 0x20},
		{0x50, 0x30, 0x30},
		{0x50, 0x08, 0x10},
		// 0x20 < lum <= 0x40
		{0x30, 0x70, 0x12},
		{0x40, 0xf0, 0x28},
		{0x30, 0x60, 0x30},
		{0x30, 0x21, 0x10},
		{0x30, 0x1f, 0x1f},
		{0x30, 0x0c, 0x10},
		// lum <= 0x20
		{0x10, 0xf5, 0x10},
		{0x20, 0xf1, 0x10},
		{0x00, 0xf0, 0x14},
		{0x10, 0xe1, 0x14},
		{0x10, 0xe0, 0x18},
		{0x10, 0x00, 0x18},
	}
	for _, tc := range tests {
		if got := sensor.CaptureGainFromLuminance(tc.gain, tc.lum); got != tc.want {
			t.Errorf("CaptureGainFromLuminance(gain=0x%02x, lum=0x%02x) = 0x%02x, want 0x%02x", tc.gain, tc.lum, got, tc.want)
		}
	}
}

func TestCaptureGainFromLuminance_Floor(t *testing.T) {
	for lum := 0; lum <= 0xff; lum++ {
		for gain := 0; gain <= 0xff; gain++ {
			if got := sensor.CaptureGainFromLuminance(byte(gain), byte(lum)); got < 0x10 {
				t.Fatalf("CaptureGainFromLuminance(0x%02x, 0x%02x) = 0x%02x, want >= 0x10", gain, lum, got)
			}
		}
	}
}

// scene is the preview used by the hand-computed cases: 30 fps, 1000-line
// frame, gain 0x40, exposure 976 lines, luminance 0x90.
func scene() sensor.TransferInput {
	return sensor.TransferInput{
		Metering: sensor.MeteringState{
			Gain:            0x40,
			ExposureMid:     0x3d,
			Luminance:       0x90,
			PreviewExpLines: 1000,
			PreviewFPS:      30,
		},
		Params:     sensor.DefaultCaptureParams(),
		BandFilter: sensor.BandFilter50Hz,
		MCLKDiv:    1,
	}
}

func TestComputeTiming(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*sensor.TransferInput)
		want sensor.CaptureTiming
	}{
		{
			name: "auto gain",
			mod:  func(*sensor.TransferInput) {},
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 52, LinesPer10ms: 14760, Gain: 0x28, Exposure: 768, Denoise: 7},
		},
		{
			name: "60hz banding",
			mod:  func(in *sensor.TransferInput) { in.BandFilter = sensor.BandFilter60Hz },
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 62, LinesPer10ms: 12300, Gain: 0x28, Exposure: 768, Denoise: 7},
		},
		{
			name: "low speed halves capture rate",
			mod:  func(in *sensor.TransferInput) { in.LowSpeed = true },
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 51, LinesPer10ms: 7281, Gain: 0x28, Exposure: 377, Denoise: 7},
		},
		{
			name: "manual gain",
			mod: func(in *sensor.TransferInput) {
				in.Params.GainMode = sensor.GainManual
				in.Params.ManualGain = 0x10
			},
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 130, LinesPer10ms: 14760, Gain: 0x10, Exposure: 1920, Denoise: 2},
		},
		{
			name: "fixed denoise",
			mod: func(in *sensor.TransferInput) {
				in.Params.DenoiseMode = sensor.DenoiseFixed
				in.Params.DenoiseLevel = 0x08
			},
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 52, LinesPer10ms: 14760, Gain: 0x28, Exposure: 768, Denoise: 0x08},
		},
		{
			name: "night mode doubles exposure",
			mod:  func(in *sensor.TransferInput) { in.Params.NightMode = 2 },
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 104, LinesPer10ms: 14760, Gain: 0x28, Exposure: 1536, Denoise: 7},
		},
		{
			name: "frame budget caps exposure",
			mod: func(in *sensor.TransferInput) {
				in.Metering.Gain = 0x80
				in.Metering.ExposureMid = 0
				in.Metering.ExposureHigh = 0x02
				in.Metering.Luminance = 0x10
			},
			want: sensor.CaptureTiming{VTS: 7872, VTSDiff: 5904, BandingStep: 533, LinesPer10ms: 14760, Gain: 65, Exposure: 7872, Denoise: 17},
		},
		{
			name: "gain ceiling",
			mod: func(in *sensor.TransferInput) {
				in.Metering.Gain = 0x80
				in.Metering.ExposureMid = 0
				in.Metering.ExposureHigh = 0x02
				in.Metering.Luminance = 0x10
				in.Params.NightMode = 16
			},
			want: sensor.CaptureTiming{VTS: 7872, VTSDiff: 5904, BandingStep: 533, LinesPer10ms: 14760, Gain: 0xf8, Exposure: 7872, Denoise: 241},
		},
		{
			name: "frame length limit moves exposure into gain",
			mod: func(in *sensor.TransferInput) {
				p := sensor.PackExposure(0x60000)
				in.Metering.ExposureLow, in.Metering.ExposureMid, in.Metering.ExposureHigh = p[0], p[1], p[2]
				in.Params.GainMode = sensor.GainManual
				in.Params.ManualGain = 0x10
			},
			want: sensor.CaptureTiming{VTS: 65535, VTSDiff: 63567, BandingStep: 4440, LinesPer10ms: 14760, Gain: 188, Exposure: 65535, Denoise: 139},
		},
		{
			name: "frame length limit with gain ceiling",
			mod: func(in *sensor.TransferInput) {
				p := sensor.PackExposure(0xfffff)
				in.Metering.ExposureLow, in.Metering.ExposureMid, in.Metering.ExposureHigh = p[0], p[1], p[2]
				in.Params.GainMode = sensor.GainManual
				in.Params.ManualGain = 0x10
			},
			want: sensor.CaptureTiming{VTS: 65535, VTSDiff: 63567, BandingStep: 4440, LinesPer10ms: 14760, Gain: 0xf8, Exposure: 65535, Denoise: 241},
		},
		{
			name: "zero exposure floors to one line",
			mod:  func(in *sensor.TransferInput) { in.Metering.ExposureMid = 0 },
			want: sensor.CaptureTiming{VTS: 1968, BandingStep: 1, LinesPer10ms: 14760, Gain: 0, Exposure: 1, Denoise: 1},
		},
	}
	for _, tc := range tests {
		in := scene()
		tc.mod(&in)
		got, err := sensor.ComputeTiming(in)
		if err != nil {
			t.Errorf("%s: ComputeTiming: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: ComputeTiming = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestComputeTiming_BandingStep(t *testing.T) {
	// With a 1968-line 30 fps preview and manual gain equal to the preview
	// gain, the capture exposure equals a quarter of the preview exposure.
	tests := []struct {
		exposure uint32
		step     uint32
	}{
		{14, 1},     // 14000 < 14760: untouched
		{738, 50},   // exactly 50 periods
		{1000, 67},  // 1000000/14760 = 67.75
		{7380, 500}, // exactly 500 periods
	}
	for _, tc := range tests {
		exp := sensor.PackExposure(tc.exposure * 4)
		in := sensor.TransferInput{
			Metering: sensor.MeteringState{
				Gain:            0x40,
				ExposureLow:     exp[0],
				ExposureMid:     exp[1],
				ExposureHigh:    exp[2],
				PreviewExpLines: 1968,
				PreviewFPS:      30,
			},
			Params:  sensor.DefaultCaptureParams(),
			MCLKDiv: 1,
		}
		in.Params.GainMode = sensor.GainManual
		in.Params.ManualGain = 0x40

		got, err := sensor.ComputeTiming(in)
		if err != nil {
			t.Fatalf("exposure %d: ComputeTiming: %v", tc.exposure, err)
		}
		if got.Exposure != tc.exposure {
			t.Errorf("exposure %d: capture exposure = %d", tc.exposure, got.Exposure)
		}
		if got.BandingStep != tc.step {
			t.Errorf("exposure %d: BandingStep = %d, want %d", tc.exposure, got.BandingStep, tc.step)
		}
	}
}

func TestComputeTiming_Bounds(t *testing.T) {
	modes := []sensor.GainMode{sensor.GainAuto, sensor.GainManual}
	for _, mode := range modes {
		for _, night := range []uint32{0, 1, 4, 16} {
			for gain := 0; gain <= 0xff; gain += 0x11 {
				for lum := 0; lum <= 0xff; lum += 0x33 {
					for _, expo := range []uint32{0, 1, 0x3d0, 0x1000, 0xfffff} {
						in := scene()
						p := sensor.PackExposure(expo)
						in.Metering.ExposureLow, in.Metering.ExposureMid, in.Metering.ExposureHigh = p[0], p[1], p[2]
						in.Metering.Gain = byte(gain)
						in.Metering.Luminance = byte(lum)
						in.Params.GainMode = mode
						in.Params.NightMode = night

						got, err := sensor.ComputeTiming(in)
						if err != nil {
							t.Fatalf("ComputeTiming(%+v): %v", in, err)
						}
						if got.Gain > 0xf8 {
							t.Fatalf("gain 0x%x > 0xf8 for %+v", got.Gain, in)
						}
						if got.Exposure < 1 {
							t.Fatalf("exposure %d < 1 for %+v", got.Exposure, in)
						}
						if got.VTS < 1968 || got.VTS > 0xffff {
							t.Fatalf("vts %d out of range for %+v", got.VTS, in)
						}
						if e := uint64(got.Exposure) * 1000; e > uint64(got.LinesPer10ms) && uint64(got.BandingStep) != e/uint64(got.LinesPer10ms) {
							t.Fatalf("banding step %d does not match exposure %d for %+v", got.BandingStep, got.Exposure, in)
						}
					}
				}
			}
		}
	}
}

func TestComputeTiming_MeteringUnavailable(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*sensor.TransferInput)
	}{
		{"no preview lines", func(in *sensor.TransferInput) { in.Metering.PreviewExpLines = 0 }},
		{"no preview fps", func(in *sensor.TransferInput) { in.Metering.PreviewFPS = 0 }},
	}
	for _, tc := range tests {
		in := scene()
		tc.mod(&in)
		if _, err := sensor.ComputeTiming(in); !errors.Is(err, sensor.ErrMeteringUnavailable) {
			t.Errorf("%s: err = %v, want ErrMeteringUnavailable", tc.name, err)
		}
	}
}

func TestComputeCaptureExposure_NoBaseline(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	if _, err := d.ComputeCaptureExposure(context.Background()); !errors.Is(err, sensor.ErrMeteringUnavailable) {
		t.Fatalf("err = %v, want ErrMeteringUnavailable", err)
	}
	if len(m.Writes()) != 0 {
		t.Errorf("writes after failed compute: %s", fmtWrites(m.Writes()))
	}
}

func TestCapture_WriteOrder(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	setPreviewScene(m)

	got, err := d.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := sensor.CaptureTiming{VTS: 1968, BandingStep: 52, LinesPer10ms: 14760, Gain: 0x28, Exposure: 768, Denoise: 7}
	if got != want {
		t.Errorf("Capture = %+v, want %+v", got, want)
	}
	checkWrites(t, m.Writes(), []hardware.RegVal{
		{Reg: hardware.RegTimingVTSHi, Val: 0x07},
		{Reg: hardware.RegTimingVTSLo, Val: 0xb0},
		{Reg: hardware.RegAECVTSHigh, Val: 0x00},
		{Reg: hardware.RegAECVTSLow, Val: 0x00},
		{Reg: hardware.RegAECGain, Val: 0x28},
		{Reg: hardware.RegAECExpLow, Val: 0x00},
		{Reg: hardware.RegAECExpMid, Val: 0x30},
		{Reg: hardware.RegAECExpHigh, Val: 0x00},
		{Reg: hardware.RegISPCtrl08, Val: 0x10},
		{Reg: hardware.RegDenoise, Val: 0x07},
	})

	st := d.Metering()
	if st.Gain != 0x40 || st.Exposure() != 976 {
		t.Errorf("preview baseline after capture = %+v, want gain 0x40 exposure 976", st)
	}
}

func TestCapture_RestoresPreview(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	ctx := context.Background()
	setPreviewScene(m)

	if _, err := d.Capture(ctx); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := d.RestorePreviewMetering(ctx); err != nil {
		t.Fatalf("RestorePreviewMetering: %v", err)
	}
	if m.GetReg(hardware.RegAECGain) != 0x40 || m.GetReg(hardware.RegAECExpMid) != 0x3d {
		t.Errorf("preview registers not restored: gain 0x%02x mid 0x%02x",
			m.GetReg(hardware.RegAECGain), m.GetReg(hardware.RegAECExpMid))
	}
}

func TestComputeCaptureExposure_WriteFailureAborts(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	ctx := context.Background()
	setPreviewScene(m)
	if err := d.CapturePreviewMetering(ctx); err != nil {
		t.Fatalf("CapturePreviewMetering: %v", err)
	}
	if _, err := d.FrameRate(ctx); err != nil {
		t.Fatalf("FrameRate: %v", err)
	}
	m.SetFailReg(hardware.RegAECGain, true)

	_, err := d.ComputeCaptureExposure(ctx)
	var be *hardware.BusError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BusError", err)
	}
	// Earlier writes stay applied; nothing after the failure is issued.
	if got := len(m.Writes()); got != 4 {
		t.Errorf("writes = %d (%s), want the 4 frame length writes", got, fmtWrites(m.Writes()))
	}
}

func TestComputeCaptureExposure_CanceledBeforeWrites(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	setPreviewScene(m)
	if err := d.CapturePreviewMetering(context.Background()); err != nil {
		t.Fatalf("CapturePreviewMetering: %v", err)
	}
	if _, err := d.FrameRate(context.Background()); err != nil {
		t.Fatalf("FrameRate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.ComputeCaptureExposure(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(m.Writes()) != 0 {
		t.Error("registers written after cancellation")
	}
}

func TestCaptureParams_Validate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*sensor.CaptureParams)
		ok   bool
	}{
		{"defaults", func(*sensor.CaptureParams) {}, true},
		{"zero frames", func(p *sensor.CaptureParams) { p.MaxCaptureFrames = 0 }, false},
		{"33 frames", func(p *sensor.CaptureParams) { p.MaxCaptureFrames = 33 }, true},
		{"34 frames", func(p *sensor.CaptureParams) { p.MaxCaptureFrames = 34 }, false},
		{"zero manual gain", func(p *sensor.CaptureParams) { p.ManualGain = 0 }, false},
		{"wide manual gain", func(p *sensor.CaptureParams) { p.ManualGain = 0x100 }, false},
		{"night 16", func(p *sensor.CaptureParams) { p.NightMode = 16 }, true},
		{"night 17", func(p *sensor.CaptureParams) { p.NightMode = 17 }, false},
		{"bad gain mode", func(p *sensor.CaptureParams) { p.GainMode = 9 }, false},
	}
	for _, tc := range tests {
		p := sensor.DefaultCaptureParams()
		tc.mod(&p)
		err := p.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: Validate = %v, want nil", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, sensor.ErrInvalidArgument) {
			t.Errorf("%s: Validate = %v, want ErrInvalidArgument", tc.name, err)
		}
	}
}

func TestDevice_ParamSetters(t *testing.T) {
	d, _, _, _ := newTestDevice(t)

	if err := d.SetNightMode(3); err != nil {
		t.Fatalf("SetNightMode: %v", err)
	}
	if err := d.SetMaxCaptureFrames(0); !errors.Is(err, sensor.ErrInvalidArgument) {
		t.Errorf("SetMaxCaptureFrames(0) = %v, want ErrInvalidArgument", err)
	}
	if err := d.SetGainMode(sensor.GainManual, 0); !errors.Is(err, sensor.ErrInvalidArgument) {
		t.Errorf("SetGainMode(manual, 0) = %v, want ErrInvalidArgument", err)
	}
	if err := d.SetGainMode(sensor.GainManual, 0x20); err != nil {
		t.Fatalf("SetGainMode: %v", err)
	}
	if err := d.SetDenoiseMode(sensor.DenoiseFixed, 0x0c); err != nil {
		t.Fatalf("SetDenoiseMode: %v", err)
	}

	p := d.CaptureParams()
	want := sensor.CaptureParams{NightMode: 3, MaxCaptureFrames: 4, GainMode: sensor.GainManual,
		ManualGain: 0x20, DenoiseMode: sensor.DenoiseFixed, DenoiseLevel: 0x0c}
	if p != want {
		t.Errorf("CaptureParams = %+v, want %+v", p, want)
	}
}
