package hardware

import (
	"context"
	"errors"
	"sync"
)

var errMockFailure = errors.New("mock: failure configured")

// Burst records one WriteBurst call on the mock.
type Burst struct {
	Addr Register
	Data []byte
}

// Mock is a thread-safe in-memory sensor bus for testing and development.
// Registers read back what was last written unless a read script is queued.
type Mock struct {
	excl sync.Mutex

	mu        sync.Mutex
	regs      map[Register]byte
	scripts   map[Register][]byte
	reads     map[Register]int
	writes    []RegVal
	bursts    []Burst
	failWrite bool
	failRead  bool
	failRegs  map[Register]bool
}

// NewMock creates a mock bus with the OV5640 chip ID and a plausible preview
// timing preloaded.
func NewMock() *Mock {
	m := &Mock{
		regs:     make(map[Register]byte),
		scripts:  make(map[Register][]byte),
		reads:    make(map[Register]int),
		failRegs: make(map[Register]bool),
	}
	m.regs[RegChipIDHigh] = 0x56
	m.regs[RegChipIDLow] = 0x40
	m.regs[RegAFFWStatus] = 0x7f
	return m
}

// SetFailWrite configures the mock to fail all write operations.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// SetFailRead configures the mock to fail all read operations.
func (m *Mock) SetFailRead(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fail
}

// SetFailReg makes every read and write of reg fail.
func (m *Mock) SetFailReg(reg Register, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRegs[reg] = fail
}

// Script queues values returned by successive reads of reg. Once the queue is
// drained, reads fall back to the stored register value.
func (m *Mock) Script(reg Register, vals ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[reg] = append(m.scripts[reg], vals...)
}

func (m *Mock) Lock()   { m.excl.Lock() }
func (m *Mock) Unlock() { m.excl.Unlock() }

func (m *Mock) Read(ctx context.Context, reg Register) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[reg]++
	if m.failRead || m.failRegs[reg] {
		return 0, &BusError{Op: "read", Addr: reg, Err: errMockFailure}
	}
	if q := m.scripts[reg]; len(q) > 0 {
		m.scripts[reg] = q[1:]
		return q[0], nil
	}
	return m.regs[reg], nil
}

func (m *Mock) Write(ctx context.Context, reg Register, val byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite || m.failRegs[reg] {
		return &BusError{Op: "write", Addr: reg, Err: errMockFailure}
	}
	m.regs[reg] = val
	m.writes = append(m.writes, RegVal{Reg: reg, Val: val})
	return nil
}

func (m *Mock) WriteBurst(ctx context.Context, reg Register, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite || m.failRegs[reg] {
		return &BusError{Op: "burst", Addr: reg, Err: errMockFailure}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	for i, b := range cp {
		m.regs[reg+Register(i)] = b
	}
	m.bursts = append(m.bursts, Burst{Addr: reg, Data: cp})
	return nil
}

// GetReg returns a register value for testing purposes.
func (m *Mock) GetReg(reg Register) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// SetReg presets a register value without recording a write.
func (m *Mock) SetReg(reg Register, val byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = val
}

// SetReg16 presets a big-endian 16-bit register pair.
func (m *Mock) SetReg16(hi, lo Register, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[hi], m.regs[lo] = SplitBE16(v)
}

// Reads returns how many times reg has been read.
func (m *Mock) Reads(reg Register) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[reg]
}

// TotalReads returns the number of reads across all registers.
func (m *Mock) TotalReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.reads {
		n += c
	}
	return n
}

// Writes returns the single-register writes in issue order.
func (m *Mock) Writes() []RegVal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegVal, len(m.writes))
	copy(out, m.writes)
	return out
}

// Bursts returns the burst writes in issue order.
func (m *Mock) Bursts() []Burst {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Burst, len(m.bursts))
	copy(out, m.bursts)
	return out
}

// ResetLog clears the recorded writes, bursts and read counters.
func (m *Mock) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
	m.bursts = nil
	m.reads = make(map[Register]int)
}

var _ Bus = (*Mock)(nil)

// MockPower counts power transitions. OnCycle, if set, runs after every
// PowerCycle so tests can change bus state across a reload.
type MockPower struct {
	mu      sync.Mutex
	cycles  int
	ons     int
	offs    int
	standby bool
	fail    error
	OnCycle func(n int)
}

// NewMockPower returns a power sequencer that never touches hardware.
func NewMockPower() *MockPower { return &MockPower{} }

// SetFail makes every transition return err (nil clears it).
func (p *MockPower) SetFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *MockPower) PowerCycle(ctx context.Context) error {
	p.mu.Lock()
	if p.fail != nil {
		err := p.fail
		p.mu.Unlock()
		return err
	}
	p.cycles++
	n, hook := p.cycles, p.OnCycle
	p.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (p *MockPower) PowerOn(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.ons++
	return nil
}

func (p *MockPower) PowerOff(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.offs++
	return nil
}

func (p *MockPower) Standby(ctx context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.standby = on
	return nil
}

// Cycles returns the number of PowerCycle calls.
func (p *MockPower) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// Ons returns the number of PowerOn calls.
func (p *MockPower) Ons() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ons
}

// Offs returns the number of PowerOff calls.
func (p *MockPower) Offs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offs
}

// InStandby reports the last Standby state.
func (p *MockPower) InStandby() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.standby
}

var _ Power = (*MockPower)(nil)
