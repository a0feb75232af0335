package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus is a Bus backed by a periph.io I²C bus. It is used on hosts where
// the i2c-dev RDWR path is unavailable, or when the bus is named through
// periph's registry ("I2C1", "/dev/i2c-2", "" for the first bus).
type PeriphBus struct {
	excl    sync.Mutex
	mu      sync.Mutex
	name    string
	addr    uint16
	bus     i2c.BusCloser
	dev     *i2c.Dev
	limiter *rate.Limiter
}

// NewPeriph creates a periph-backed bus. Open must be called before use.
func NewPeriph(name string, addr uint16) *PeriphBus {
	return &PeriphBus{
		name:    name,
		addr:    addr,
		limiter: rate.NewLimiter(rate.Limit(maxPeriphOpsPerSec), 16),
	}
}

const (
	maxPeriphOpsPerSec = 2000
	periphBurstChunk   = 254
)

// Open initializes the periph host drivers and opens the named bus.
func (b *PeriphBus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("i2c: periph host init: %w", err)
	}
	bus, err := i2creg.Open(b.name)
	if err != nil {
		return fmt.Errorf("i2c: open periph bus %q: %w", b.name, err)
	}
	b.bus = bus
	b.dev = &i2c.Dev{Bus: bus, Addr: b.addr}
	slog.Info("i2c: periph bus opened", "bus", bus.String(), "addr", fmt.Sprintf("0x%02x", b.addr))
	return nil
}

// Close releases the underlying bus.
func (b *PeriphBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	b.dev = nil
	return err
}

func (b *PeriphBus) Lock()   { b.excl.Lock() }
func (b *PeriphBus) Unlock() { b.excl.Unlock() }

func (b *PeriphBus) Read(ctx context.Context, reg Register) (byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return 0, &BusError{Op: "read", Addr: reg, Err: errNotOpen}
	}
	var r [1]byte
	if err := b.dev.Tx([]byte{byte(reg >> 8), byte(reg)}, r[:]); err != nil {
		return 0, &BusError{Op: "read", Addr: reg, Err: err}
	}
	return r[0], nil
}

func (b *PeriphBus) Write(ctx context.Context, reg Register, val byte) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return &BusError{Op: "write", Addr: reg, Err: errNotOpen}
	}
	if err := b.dev.Tx([]byte{byte(reg >> 8), byte(reg), val}, nil); err != nil {
		return &BusError{Op: "write", Addr: reg, Err: err}
	}
	return nil
}

func (b *PeriphBus) WriteBurst(ctx context.Context, reg Register, data []byte) error {
	for off := 0; off < len(data); off += periphBurstChunk {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		end := min(off+periphBurstChunk, len(data))
		start := reg + Register(off)
		w := make([]byte, 0, 2+end-off)
		w = append(w, byte(start>>8), byte(start))
		w = append(w, data[off:end]...)

		b.mu.Lock()
		if b.dev == nil {
			b.mu.Unlock()
			return &BusError{Op: "burst", Addr: start, Err: errNotOpen}
		}
		err := b.dev.Tx(w, nil)
		b.mu.Unlock()
		if err != nil {
			return &BusError{Op: "burst", Addr: start, Err: err}
		}
	}
	return nil
}

var _ Bus = (*PeriphBus)(nil)
