package sensor_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micro-nova/ov5640-go/internal/hardware"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// sleepLog records the delays a device asks for instead of sleeping.
type sleepLog struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleepLog) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
}

func (s *sleepLog) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.d...)
}

var testFirmware = []byte{0x02, 0x0f, 0xd6, 0x02, 0x0a, 0x39}

func newTestDevice(t *testing.T, opts ...sensor.Option) (*sensor.Device, *hardware.Mock, *hardware.MockPower, *sleepLog) {
	t.Helper()
	m := hardware.NewMock()
	p := hardware.NewMockPower()
	sl := &sleepLog{}
	all := append([]sensor.Option{sensor.WithSleep(sl.sleep), sensor.WithFirmware(testFirmware)}, opts...)
	return sensor.New(m, p, all...), m, p, sl
}

// setPLL240 programs a PLL that yields a 240 MHz pixel clock from 24 MHz.
func setPLL240(m *hardware.Mock) {
	m.SetReg(hardware.RegSCPLLCtrl0, 0x08) // 8-bit mode
	m.SetReg(hardware.RegSCPLLCtrl1, 0x20) // sys div 2
	m.SetReg(hardware.RegSCPLLCtrl2, 0x50) // mul 80
	m.SetReg(hardware.RegSCPLLCtrl3, 0x01) // pre div 1, pll r div 1
	m.SetReg(hardware.RegSysRootDiv, 0x01) // sclk div 2
}

// setPreviewScene programs a 30 fps preview with gain 0x40, exposure 976
// lines, a 1000-line frame and luminance 0x90.
func setPreviewScene(m *hardware.Mock) {
	setPLL240(m)
	m.SetReg16(hardware.RegTimingHTSHi, hardware.RegTimingHTSLo, 8000)
	m.SetReg16(hardware.RegTimingVTSHi, hardware.RegTimingVTSLo, 1000)
	m.SetReg16(hardware.RegAECVTSHigh, hardware.RegAECVTSLow, 0)
	m.SetReg(hardware.RegAECGain, 0x40)
	m.SetReg(hardware.RegAECExpLow, 0x00)
	m.SetReg(hardware.RegAECExpMid, 0x3d)
	m.SetReg(hardware.RegAECExpHigh, 0x00)
	m.SetReg(hardware.RegAverage, 0x90)
}

func checkWrites(t *testing.T, got, want []hardware.RegVal) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("writes = %s, want %s", fmtWrites(got), fmtWrites(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d = %s, want %s (all: %s)", i, fmtWrites(got[i:i+1]), fmtWrites(want[i:i+1]), fmtWrites(got))
		}
	}
}

func fmtWrites(ws []hardware.RegVal) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = fmt.Sprintf("0x%04x=0x%02x", w.Reg, w.Val)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
