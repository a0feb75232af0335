package sensor

import "errors"

var (
	// ErrNotDetected is returned when the chip ID does not match an OV5640.
	ErrNotDetected = errors.New("sensor: OV5640 not detected")

	// ErrClockUnavailable is returned when a PLL divisor decodes to zero.
	ErrClockUnavailable = errors.New("sensor: pixel clock unavailable")

	// ErrTimingUnavailable is returned when the frame timing registers hold
	// a zero line or column total.
	ErrTimingUnavailable = errors.New("sensor: frame timing unavailable")

	// ErrMeteringUnavailable is returned when no preview baseline has been
	// captured.
	ErrMeteringUnavailable = errors.New("sensor: preview metering unavailable")

	// ErrFirmwareHandshakeTimeout is returned when the autofocus MCU never
	// reports ready. AF stays unavailable until the next Init or a
	// successful download.
	ErrFirmwareHandshakeTimeout = errors.New("sensor: af firmware handshake timeout")

	// ErrInvalidArgument is returned for out-of-range caller input.
	ErrInvalidArgument = errors.New("sensor: invalid argument")

	// ErrInvalidTransition is returned when a mode change conflicts with the
	// current autofocus state.
	ErrInvalidTransition = errors.New("sensor: invalid transition")
)
