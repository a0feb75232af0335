//go:build linux

package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

const (
	i2cRdwrIOCTL = 0x0707 // I2C_RDWR ioctl: combined write+read with REPEATED START
	i2cMsgRD     = 0x0001 // i2c_msg flag: read direction
	maxOpsPerSec = 2000

	// burstChunk bounds the payload of a single burst message; the 16-bit
	// start address is prepended to each chunk.
	burstChunk = 254
)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	_pad   uint16 // struct alignment
	buf    unsafe.Pointer
}

// i2cRdwr mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h
type i2cRdwr struct {
	msgs  unsafe.Pointer
	nmsgs uint32
}

// I2CBus talks to the sensor through /dev/i2c-N using I2C_RDWR for every
// transaction, so register reads use a REPEATED START as the OV5640 SCCB
// interface requires.
type I2CBus struct {
	excl    sync.Mutex // exclusive-access lock handed out via Lock/Unlock
	mu      sync.Mutex // guards fd
	path    string
	addr    uint16
	fd      int
	limiter *rate.Limiter
}

// NewI2C creates a bus for the sensor at addr on the given i2c-dev node.
// Open must be called before any transaction.
func NewI2C(path string, addr uint16) *I2CBus {
	return &I2CBus{
		path:    path,
		addr:    addr,
		fd:      -1,
		limiter: rate.NewLimiter(rate.Limit(maxOpsPerSec), 16),
	}
}

// Open opens the i2c-dev node.
func (b *I2CBus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(b.path, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("i2c: open %s: %w", b.path, err)
	}
	b.fd = fd
	slog.Info("i2c: bus opened", "path", b.path, "addr", fmt.Sprintf("0x%02x", b.addr))
	return nil
}

// Close releases the I2C file descriptor.
func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

func (b *I2CBus) Lock()   { b.excl.Lock() }
func (b *I2CBus) Unlock() { b.excl.Unlock() }

func (b *I2CBus) Read(ctx context.Context, reg Register) (byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return 0, &BusError{Op: "read", Addr: reg, Err: errNotOpen}
	}

	wbuf := [2]byte{byte(reg >> 8), byte(reg)}
	rbuf := [1]byte{}

	// Two i2c_msg: [write 16-bit reg addr] + [read 1 byte], combined with I2C_RDWR ioctl
	msgs := [2]i2cMsg{
		{addr: b.addr, flags: 0, length: 2, buf: unsafe.Pointer(&wbuf[0])},
		{addr: b.addr, flags: i2cMsgRD, length: 1, buf: unsafe.Pointer(&rbuf[0])},
	}
	err := b.rdwr(msgs[:])
	runtime.KeepAlive(&wbuf)
	runtime.KeepAlive(&rbuf)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: reg, Err: err}
	}
	return rbuf[0], nil
}

func (b *I2CBus) Write(ctx context.Context, reg Register, val byte) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return &BusError{Op: "write", Addr: reg, Err: errNotOpen}
	}
	wbuf := [3]byte{byte(reg >> 8), byte(reg), val}
	msgs := [1]i2cMsg{
		{addr: b.addr, flags: 0, length: 3, buf: unsafe.Pointer(&wbuf[0])},
	}
	err := b.rdwr(msgs[:])
	runtime.KeepAlive(&wbuf)
	if err != nil {
		return &BusError{Op: "write", Addr: reg, Err: err}
	}
	return nil
}

// WriteBurst writes data to consecutive registers, split into chunks that each
// carry their own start address. The sensor auto-increments the address
// within a message.
func (b *I2CBus) WriteBurst(ctx context.Context, reg Register, data []byte) error {
	buf := make([]byte, 2+burstChunk)
	for off := 0; off < len(data); off += burstChunk {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		end := min(off+burstChunk, len(data))
		start := reg + Register(off)
		buf[0], buf[1] = byte(start>>8), byte(start)
		n := copy(buf[2:], data[off:end])

		b.mu.Lock()
		if b.fd < 0 {
			b.mu.Unlock()
			return &BusError{Op: "burst", Addr: start, Err: errNotOpen}
		}
		msgs := [1]i2cMsg{
			{addr: b.addr, flags: 0, length: uint16(2 + n), buf: unsafe.Pointer(&buf[0])},
		}
		err := b.rdwr(msgs[:])
		runtime.KeepAlive(buf)
		b.mu.Unlock()
		if err != nil {
			return &BusError{Op: "burst", Addr: start, Err: err}
		}
	}
	return nil
}

// rdwr issues one I2C_RDWR ioctl. Caller holds b.mu and keeps the message
// buffers alive until it returns.
func (b *I2CBus) rdwr(msgs []i2cMsg) error {
	data := i2cRdwr{msgs: unsafe.Pointer(&msgs[0]), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	if errno != 0 {
		return errno
	}
	return nil
}

var _ Bus = (*I2CBus)(nil)
