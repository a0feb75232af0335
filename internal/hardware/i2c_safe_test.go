//go:build linux

package hardware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// These tests exercise I2CBus paths that are safe without real hardware.

func TestI2CBus_NotOpen(t *testing.T) {
	b := hardware.NewI2C("/dev/i2c-does-not-exist", hardware.DefaultAddr)
	ctx := context.Background()

	_, err := b.Read(ctx, hardware.RegChipIDHigh)
	var be *hardware.BusError
	if !errors.As(err, &be) {
		t.Fatalf("Read before Open = %v, want *BusError", err)
	}
	if be.Op != "read" || be.Addr != hardware.RegChipIDHigh {
		t.Errorf("BusError = %+v", be)
	}
	if err := b.Write(ctx, hardware.RegAECGain, 0x10); !errors.As(err, &be) {
		t.Errorf("Write before Open = %v, want *BusError", err)
	}
	if err := b.WriteBurst(ctx, hardware.RegAFFirmware, []byte{1, 2, 3}); !errors.As(err, &be) {
		t.Errorf("WriteBurst before Open = %v, want *BusError", err)
	}
}

func TestI2CBus_OpenMissingNode(t *testing.T) {
	b := hardware.NewI2C("/dev/i2c-does-not-exist", hardware.DefaultAddr)
	if err := b.Open(); err == nil {
		t.Skip("node unexpectedly present; skipping")
	}
}

func TestI2CBus_CloseBeforeOpen(t *testing.T) {
	b := hardware.NewI2C("/dev/i2c-does-not-exist", hardware.DefaultAddr)
	if err := b.Close(); err != nil {
		t.Errorf("Close before Open = %v, want nil", err)
	}
}

func TestI2CBus_CanceledContext(t *testing.T) {
	b := hardware.NewI2C("/dev/i2c-does-not-exist", hardware.DefaultAddr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Read(ctx, hardware.RegChipIDHigh); err == nil {
		t.Error("Read with canceled context: want error, got nil")
	}
}

func TestPeriphBus_NotOpen(t *testing.T) {
	b := hardware.NewPeriph("", hardware.DefaultAddr)
	var be *hardware.BusError
	if _, err := b.Read(context.Background(), hardware.RegChipIDHigh); !errors.As(err, &be) {
		t.Errorf("Read before Open = %v, want *BusError", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close before Open = %v, want nil", err)
	}
}
