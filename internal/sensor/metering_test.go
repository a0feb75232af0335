package sensor_test

import (
	"context"
	"testing"

	"github.com/micro-nova/ov5640-go/internal/hardware"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

func TestPackUnpackExposure_RoundTrip(t *testing.T) {
	for v := uint32(0); v <= sensor.MaxExposure; v++ {
		p := sensor.PackExposure(v)
		if got := sensor.UnpackExposure(p[0], p[1], p[2]); got != v {
			t.Fatalf("UnpackExposure(PackExposure(0x%05x)) = 0x%05x", v, got)
		}
	}
}

func TestPackExposure(t *testing.T) {
	tests := []struct {
		v    uint32
		want [3]byte
	}{
		{0x00000, [3]byte{0x00, 0x00, 0x00}},
		{0x003d0, [3]byte{0x00, 0x3d, 0x00}},
		{0x12345, [3]byte{0x50, 0x34, 0x12}},
		{0xfffff, [3]byte{0xf0, 0xff, 0xff}},
	}
	for _, tc := range tests {
		if got := sensor.PackExposure(tc.v); got != tc.want {
			t.Errorf("PackExposure(0x%05x) = % x, want % x", tc.v, got, tc.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	st := d.Metering()
	if st.Gain != 0x28 || st.ExposureMid != 0x3d || st.ExposureLow != 0 || st.ExposureHigh != 0 {
		t.Errorf("default metering = %+v, want gain 0x28 exposure mid 0x3d", st)
	}
	if st.Luminance != 0xff {
		t.Errorf("default luminance = 0x%02x, want 0xff", st.Luminance)
	}
	af := d.AF()
	if af.Status != sensor.FocusIdle || af.Mode != sensor.FocusSingle || !af.FirstFlag {
		t.Errorf("default af = %+v", af)
	}
	p := d.CaptureParams()
	if p != sensor.DefaultCaptureParams() {
		t.Errorf("default params = %+v", p)
	}
}

func TestCapturePreviewMetering(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	m.SetReg(hardware.RegAECGain, 0x35)
	m.SetReg(hardware.RegAECExpLow, 0x50)
	m.SetReg(hardware.RegAECExpMid, 0x34)
	m.SetReg(hardware.RegAECExpHigh, 0x01)
	m.SetReg16(hardware.RegTimingVTSHi, hardware.RegTimingVTSLo, 984)
	m.SetReg16(hardware.RegAECVTSHigh, hardware.RegAECVTSLow, 16)

	if err := d.CapturePreviewMetering(context.Background()); err != nil {
		t.Fatalf("CapturePreviewMetering: %v", err)
	}
	st := d.Metering()
	if st.Gain != 0x35 {
		t.Errorf("Gain = 0x%02x, want 0x35", st.Gain)
	}
	if got := st.Exposure(); got != 0x01345 {
		t.Errorf("Exposure = 0x%05x, want 0x01345", got)
	}
	if st.PreviewExpLines != 1000 {
		t.Errorf("PreviewExpLines = %d, want 1000", st.PreviewExpLines)
	}
	if len(m.Writes()) != 0 {
		t.Error("CapturePreviewMetering wrote to the sensor")
	}
}

func TestCapturePreviewMetering_PartialReadLeavesState(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	before := d.Metering()
	m.SetReg(hardware.RegAECGain, 0x77)
	m.SetFailReg(hardware.RegAECVTSLow, true)

	if err := d.CapturePreviewMetering(context.Background()); err == nil {
		t.Fatal("CapturePreviewMetering: want error, got nil")
	}
	if got := d.Metering(); got != before {
		t.Errorf("metering changed after failed capture: %+v, want %+v", got, before)
	}
}

func TestRestorePreviewMetering(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	ctx := context.Background()
	m.SetReg(hardware.RegAECGain, 0x30)
	m.SetReg(hardware.RegAECExpLow, 0x20)
	m.SetReg(hardware.RegAECExpMid, 0x41)
	m.SetReg(hardware.RegAECExpHigh, 0x02)
	if err := d.CapturePreviewMetering(ctx); err != nil {
		t.Fatalf("CapturePreviewMetering: %v", err)
	}

	if err := d.RestorePreviewMetering(ctx); err != nil {
		t.Fatalf("RestorePreviewMetering: %v", err)
	}
	checkWrites(t, m.Writes(), []hardware.RegVal{
		{Reg: hardware.RegAECGain, Val: 0x30},
		{Reg: hardware.RegAECExpLow, Val: 0x20},
		{Reg: hardware.RegAECExpMid, Val: 0x41},
		{Reg: hardware.RegAECExpHigh, Val: 0x02},
	})
}

func TestMeasureLuminance(t *testing.T) {
	d, m, _, _ := newTestDevice(t)
	m.SetReg(hardware.RegAverage, 0x42)
	got, err := d.MeasureLuminance(context.Background())
	if err != nil {
		t.Fatalf("MeasureLuminance: %v", err)
	}
	if got != 0x42 || d.Metering().Luminance != 0x42 {
		t.Errorf("luminance = 0x%02x (state 0x%02x), want 0x42", got, d.Metering().Luminance)
	}
}

func TestDevices_AreIndependent(t *testing.T) {
	a, ma, _, _ := newTestDevice(t)
	b, _, _, _ := newTestDevice(t)
	ma.SetReg(hardware.RegAECGain, 0x99)
	ma.SetReg16(hardware.RegTimingVTSHi, hardware.RegTimingVTSLo, 1000)

	if err := a.CapturePreviewMetering(context.Background()); err != nil {
		t.Fatalf("CapturePreviewMetering: %v", err)
	}
	if got := b.Metering().Gain; got != 0x28 {
		t.Errorf("second device gain = 0x%02x, want untouched 0x28", got)
	}
	if got := a.Metering().Gain; got != 0x99 {
		t.Errorf("first device gain = 0x%02x, want 0x99", got)
	}
}
