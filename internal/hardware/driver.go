// Package hardware provides the bus and power abstraction for the OV5640
// image sensor. It defines the Bus interface used by the sensor control core,
// the real I2C backends, the GPIO power sequencer and an in-memory mock.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultAddr is the OV5640 7-bit I2C address (0x78 in 8-bit notation).
const DefaultAddr uint16 = 0x3c

var errNotOpen = errors.New("bus not open")

// Register is a 16-bit sensor register address.
type Register = uint16

// RegVal is a single register/value pair of a write sequence.
type RegVal struct {
	Reg Register
	Val byte
}

// Bus is the register-level transaction primitive for a sensor with 16-bit
// register addresses and 8-bit values.
//
// The embedded Locker grants exclusive access to the bus for multi-transaction
// sequences (power-state transitions, firmware download, capture exposure).
// Read, Write and WriteBurst do not take that lock themselves.
type Bus interface {
	sync.Locker

	// Read reads a single byte from a register.
	Read(ctx context.Context, reg Register) (byte, error)

	// Write writes a single byte to a register.
	Write(ctx context.Context, reg Register, val byte) error

	// WriteBurst writes data to consecutive registers starting at reg.
	WriteBurst(ctx context.Context, reg Register, data []byte) error
}

// Power sequences the sensor's power-down, reset and power-enable lines.
type Power interface {
	// PowerCycle asserts then deasserts the power-down line.
	PowerCycle(ctx context.Context) error

	// PowerOn runs the full power-up sequence.
	PowerOn(ctx context.Context) error

	// PowerOff runs the full power-down sequence.
	PowerOff(ctx context.Context) error

	// Standby enters (on=true) or leaves hardware standby.
	Standby(ctx context.Context, on bool) error
}

// BusError is returned when a bus transaction fails.
type BusError struct {
	Op   string // "read", "write" or "burst"
	Addr Register
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c: %s 0x%04x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// WriteArray writes a register sequence in order, stopping at the first failure.
func WriteArray(ctx context.Context, bus Bus, seq []RegVal) error {
	for _, rv := range seq {
		if err := bus.Write(ctx, rv.Reg, rv.Val); err != nil {
			return err
		}
	}
	return nil
}

// Read16 reads a big-endian 16-bit value split across a high and a low register.
func Read16(ctx context.Context, bus Bus, hi, lo Register) (uint32, error) {
	h, err := bus.Read(ctx, hi)
	if err != nil {
		return 0, err
	}
	l, err := bus.Read(ctx, lo)
	if err != nil {
		return 0, err
	}
	return uint32(h)<<8 | uint32(l), nil
}

// Write16 writes the low 16 bits of v big-endian to a high and a low register.
func Write16(ctx context.Context, bus Bus, hi, lo Register, v uint32) error {
	if err := bus.Write(ctx, hi, byte(v>>8)); err != nil {
		return err
	}
	return bus.Write(ctx, lo, byte(v))
}
