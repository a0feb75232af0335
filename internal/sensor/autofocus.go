package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/ov5640-go/internal/hardware"
)

// FocusStatus is the persistent busy flag of the AF context.
type FocusStatus int

const (
	FocusIdle FocusStatus = iota
	FocusBusy
)

// FocusMode is the persistent AF mode.
type FocusMode int

const (
	FocusSingle FocusMode = iota
	FocusContinuous
)

func (m FocusMode) String() string {
	if m == FocusContinuous {
		return "continuous"
	}
	return "single"
}

// AFContext is the autofocus part of the device context.
type AFContext struct {
	Status    FocusStatus `json:"status"`
	Mode      FocusMode   `json:"mode"`
	FirstFlag bool        `json:"first_flag"` // firmware not yet downloaded
	Failed    bool        `json:"failed"`     // firmware handshake timed out
}

// AFStatus is the result of an AF status query.
type AFStatus int

const (
	AFIdle AFStatus = iota
	AFBusy
	AFReached
	AFFailed
)

func (s AFStatus) String() string {
	switch s {
	case AFIdle:
		return "idle"
	case AFBusy:
		return "busy"
	case AFReached:
		return "reached"
	case AFFailed:
		return "failed"
	}
	return fmt.Sprintf("AFStatus(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s AFStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// AF MCU commands written to RegAFCmdMain.
const (
	afCmdSingle     = 0x03
	afCmdContinuous = 0x04
	afCmdPause      = 0x06
	afCmdRelease    = 0x08
	afCmdRelaunch   = 0x80
	afCmdSetZone    = 0x81
)

// AF MCU status values read from RegAFFWStatus.
const (
	afStatusFocusing  = 0x00
	afStatusFocused   = 0x10
	afStatusContFocus = 0x20
	afStatusIdle      = 0x70
)

const (
	fwPollsPerAttempt = 3
	fwMaxReloads      = 2
	fwStartDelay      = 10 * time.Millisecond
	fwPollDelay       = 5 * time.Millisecond
	afTriggerPolls    = 10
	afTriggerDelay    = time.Millisecond
	afRelaunchSettle  = 5 * time.Millisecond
)

// Zone grid scales of the AF MCU. 720p and 1080p frames use ZoneScaleYHD
// vertically.
const (
	ZoneScaleX   = 80
	ZoneScaleYHD = 45
	ZoneScaleY   = 60
)

// Window is an AF request rectangle in the normalized -1000..1000 space.
type Window struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

var errAFUnavailable = fmt.Errorf("af: firmware not running: %w", ErrFirmwareHandshakeTimeout)

// fwState is a step of the firmware ready handshake.
type fwState int

const (
	fwAttempt fwState = iota
	fwPoll
	fwRetry
	fwReady
	fwFail
)

// firmwareStart releases the MCU after the image is loaded.
var firmwareStart = []hardware.RegVal{
	{Reg: hardware.RegAFCmdMain, Val: 0x00},
	{Reg: hardware.RegAFCmdAck, Val: 0x00},
	{Reg: hardware.RegAFCmdPara0, Val: 0x00},
	{Reg: hardware.RegAFCmdPara1, Val: 0x00},
	{Reg: hardware.RegAFCmdPara2, Val: 0x00},
	{Reg: hardware.RegAFCmdPara3, Val: 0x00},
	{Reg: hardware.RegAFCmdPara4, Val: 0x00},
	{Reg: hardware.RegAFFWStatus, Val: 0x7f},
	{Reg: hardware.RegSystemCtrl0, Val: 0x00},
}

// DownloadFirmware loads the AF MCU image and waits for it to report ready.
// Each attempt polls the status register three times; after a failed
// attempt the sensor is power cycled and polled again, at most twice.
func (d *Device) DownloadFirmware(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloadFirmware(ctx)
}

// InitAF downloads the firmware and marks AF as initialized.
func (d *Device) InitAF(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.downloadFirmware(ctx); err != nil {
		return err
	}
	d.af.FirstFlag = false
	return nil
}

func (d *Device) downloadFirmware(ctx context.Context) error {
	if len(d.firmware) == 0 {
		return fmt.Errorf("%w: no af firmware image", ErrInvalidArgument)
	}
	d.bus.Lock()
	defer d.bus.Unlock()

	if err := d.bus.Write(ctx, hardware.RegSystemCtrl0, 0x20); err != nil {
		return fmt.Errorf("af: reset mcu: %w", err)
	}
	wctx := context.WithoutCancel(ctx)
	if err := d.bus.WriteBurst(wctx, hardware.RegAFFirmware, d.firmware); err != nil {
		return fmt.Errorf("af: download firmware: %w", err)
	}
	if err := hardware.WriteArray(wctx, d.bus, firmwareStart); err != nil {
		return fmt.Errorf("af: start firmware: %w", err)
	}
	d.sleep(fwStartDelay)

	if err := d.awaitFirmware(wctx); err != nil {
		d.af.Failed = true
		return err
	}
	d.af.Failed = false
	slog.Info("af: firmware ready", "size", len(d.firmware))
	return nil
}

// awaitFirmware runs the ready handshake:
// Attempt -> Poll -> {Ready, Retry -> Attempt, Fail}.
func (d *Device) awaitFirmware(ctx context.Context) error {
	var reads, reloads int
	state := fwAttempt
	for {
		switch state {
		case fwAttempt:
			reads = 0
			state = fwPoll

		case fwPoll:
			v, err := d.bus.Read(ctx, hardware.RegAFFWStatus)
			if err != nil {
				return fmt.Errorf("af: read firmware status: %w", err)
			}
			reads++
			switch {
			case v == afStatusIdle:
				state = fwReady
			case reads >= fwPollsPerAttempt:
				slog.Warn("af: firmware status timeout", "status", fmt.Sprintf("0x%02x", v), "reload", reloads)
				state = fwRetry
			default:
				d.sleep(fwPollDelay)
			}

		case fwRetry:
			if reloads >= fwMaxReloads {
				state = fwFail
				continue
			}
			reloads++
			if d.power == nil {
				slog.Warn("af: no power control, retrying without power cycle", "reload", reloads)
			} else if err := d.power.PowerCycle(ctx); err != nil {
				return fmt.Errorf("af: power cycle: %w", err)
			}
			state = fwAttempt

		case fwReady:
			return nil

		case fwFail:
			return ErrFirmwareHandshakeTimeout
		}
	}
}

// TriggerSingleAF starts a single-shot focus. A trigger that is never
// acknowledged is logged and the focus still proceeds.
func (d *Device) TriggerSingleAF(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.af.Failed {
		return errAFUnavailable
	}

	d.af.Status = FocusIdle
	if err := hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
		{Reg: hardware.RegAFCmdAck, Val: 0x01},
		{Reg: hardware.RegAFCmdMain, Val: afCmdSingle},
	}); err != nil {
		return fmt.Errorf("af: trigger single: %w", err)
	}

	ack := byte(0xff)
	for n := 0; ack != 0 && n < afTriggerPolls; n++ {
		d.sleep(afTriggerDelay)
		v, err := d.bus.Read(ctx, hardware.RegAFCmdAck)
		if err != nil {
			return fmt.Errorf("af: read trigger ack: %w", err)
		}
		ack = v
	}
	if ack != 0 {
		slog.Debug("af: single trigger not acknowledged", "ack", fmt.Sprintf("0x%02x", ack))
	}

	d.af.Status = FocusBusy
	d.af.Mode = FocusSingle
	return nil
}

// focusResult reads the MCU result register: zero means focus failed.
func (d *Device) focusResult(ctx context.Context) (AFStatus, error) {
	v, err := d.bus.Read(ctx, hardware.RegAFCmdPara4)
	if err != nil {
		return AFIdle, err
	}
	if v == 0 {
		return AFFailed, nil
	}
	return AFReached, nil
}

// PollSingleAFStatus reports the progress of a single-shot focus. When no
// focus is in flight it returns AFIdle without touching the bus.
func (d *Device) PollSingleAFStatus(ctx context.Context) (AFStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pollSingle(ctx)
}

func (d *Device) pollSingle(ctx context.Context) (AFStatus, error) {
	if d.af.Status != FocusBusy {
		return AFIdle, nil
	}
	v, err := d.bus.Read(ctx, hardware.RegAFFWStatus)
	if err != nil {
		return AFBusy, err
	}
	switch v {
	case afStatusFocused:
		res, err := d.focusResult(ctx)
		if err != nil {
			return AFBusy, err
		}
		d.af.Status = FocusIdle
		return res, nil
	case afStatusIdle:
		d.af.Status = FocusIdle
		return AFIdle, nil
	default:
		return AFBusy, nil
	}
}

// PollContinuousAFStatus reports the state of continuous focus.
func (d *Device) PollContinuousAFStatus(ctx context.Context) (AFStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pollContinuous(ctx)
}

func (d *Device) pollContinuous(ctx context.Context) (AFStatus, error) {
	v, err := d.bus.Read(ctx, hardware.RegAFFWStatus)
	if err != nil {
		return AFIdle, err
	}
	switch v {
	case afStatusContFocus, afStatusFocused:
		res, err := d.focusResult(ctx)
		if err != nil {
			return AFIdle, err
		}
		d.af.Status = FocusIdle
		return res, nil
	case afStatusFocusing:
		d.af.Status = FocusBusy
		return AFBusy, nil
	default:
		d.af.Status = FocusIdle
		return AFIdle, nil
	}
}

// AFStatus polls according to the current AF mode.
func (d *Device) AFStatus(ctx context.Context) (AFStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.af.Mode == FocusContinuous {
		return d.pollContinuous(ctx)
	}
	return d.pollSingle(ctx)
}

// SetContinuousAF switches between continuous and single focus. It is
// rejected while a single-shot focus is in flight.
func (d *Device) SetContinuousAF(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.af.Failed {
		return errAFUnavailable
	}
	if d.af.Status == FocusBusy && d.af.Mode == FocusSingle {
		return fmt.Errorf("%w: single focus in progress", ErrInvalidTransition)
	}
	want := FocusSingle
	if enabled {
		want = FocusContinuous
	}
	if d.af.Mode == want {
		return nil
	}

	if enabled {
		if err := hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
			{Reg: hardware.RegAFCmdMain, Val: afCmdContinuous},
			{Reg: hardware.RegAFCmdMain, Val: afCmdRelaunch},
		}); err != nil {
			return fmt.Errorf("af: enable continuous: %w", err)
		}
	} else if err := d.bus.Write(ctx, hardware.RegAFCmdMain, afCmdPause); err != nil {
		return fmt.Errorf("af: disable continuous: %w", err)
	}
	d.af.Mode = want
	slog.Debug("af: mode changed", "mode", want)
	return nil
}

// PauseAF holds the lens at its current position.
func (d *Device) PauseAF(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauseAF(ctx)
}

func (d *Device) pauseAF(ctx context.Context) error {
	return d.bus.Write(ctx, hardware.RegAFCmdMain, afCmdPause)
}

// ReleaseAF releases the lens to its rest position.
func (d *Device) ReleaseAF(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.Write(ctx, hardware.RegAFCmdMain, afCmdRelease)
}

// RelaunchAFZone restores the default AF zone.
func (d *Device) RelaunchAFZone(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relaunchAFZone(ctx)
}

func (d *Device) relaunchAFZone(ctx context.Context) error {
	if err := hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
		{Reg: hardware.RegAFCmdAck, Val: 0x01},
		{Reg: hardware.RegAFCmdMain, Val: afCmdRelaunch},
	}); err != nil {
		return err
	}
	d.sleep(afRelaunchSettle)
	return nil
}

// zoneRange bounds the normalized window coordinates.
const zoneRange = 1000

// zoneCenter maps a normalized window to the pixel center of a width x height
// frame. The center may sit exactly on the frame edge.
func zoneCenter(w Window, width, height int) (xc, yc int, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: frame size %dx%d", ErrInvalidArgument, width, height)
	}
	for _, v := range [4]int{w.X1, w.Y1, w.X2, w.Y2} {
		if v < -zoneRange || v > zoneRange {
			return 0, 0, fmt.Errorf("%w: af window %+v outside -%d..%d", ErrInvalidArgument, w, zoneRange, zoneRange)
		}
	}
	if w.X1 > w.X2 || w.Y1 > w.Y2 {
		return 0, 0, fmt.Errorf("%w: inverted af window %+v", ErrInvalidArgument, w)
	}
	sx, sy := 2*zoneRange+w.X1+w.X2, 2*zoneRange+w.Y1+w.Y2
	xc = width * (sx / 2) / (2 * zoneRange)
	yc = height * (sy / 2) / (2 * zoneRange)
	return xc, yc, nil
}

// ZoneCoordinates returns the AF MCU zone center for a window on a
// width x height frame.
func ZoneCoordinates(w Window, width, height int) (x, y byte, err error) {
	xc, yc, err := zoneCenter(w, width, height)
	if err != nil {
		return 0, 0, err
	}
	scaleY := ZoneScaleY
	if (width == 1280 && height == 720) || (width == 1920 && height == 1080) {
		scaleY = ZoneScaleYHD
	}
	x = byte((xc*ZoneScaleX*2/width + 1) / 2)
	y = byte((yc*scaleY*2/height + 1) / 2)
	return x, y, nil
}

// SetAFZone focuses on the center of w within a width x height frame. The
// request is dropped without error while focus is busy.
func (d *Device) SetAFZone(ctx context.Context, w Window, width, height int) error {
	x, y, err := ZoneCoordinates(w, width, height)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.af.Failed {
		return errAFUnavailable
	}
	if d.af.Status == FocusBusy {
		slog.Debug("af: zone request dropped while focus busy")
		return nil
	}

	if err := hardware.WriteArray(ctx, d.bus, []hardware.RegVal{
		{Reg: hardware.RegAFCmdPara0, Val: x},
		{Reg: hardware.RegAFCmdPara1, Val: y},
		{Reg: hardware.RegAFCmdAck, Val: 0x01},
		{Reg: hardware.RegAFCmdMain, Val: afCmdSetZone},
	}); err != nil {
		return fmt.Errorf("af: set zone: %w", err)
	}
	return d.relaunchAFZone(ctx)
}
