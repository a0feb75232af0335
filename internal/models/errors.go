package models

import (
	"errors"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// Error constructors.
var (
	ErrNotFound = func(msg string) *AppError {
		return &AppError{Code: "NOT_FOUND", Message: msg, Status: 404}
	}
	ErrBadRequest = func(msg string) *AppError {
		return &AppError{Code: "BAD_REQUEST", Message: msg, Status: 400}
	}
	ErrInternal = func(msg string) *AppError {
		return &AppError{Code: "INTERNAL", Message: msg, Status: 500}
	}
	ErrConflict = func(msg string) *AppError {
		return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
	}
	ErrUnavailable = func(msg string) *AppError {
		return &AppError{Code: "UNAVAILABLE", Message: msg, Status: 503}
	}
)

// FromError maps a sensor or config error to its HTTP form. A nil err
// returns nil.
func FromError(err error) *AppError {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sensor.ErrInvalidArgument), errors.Is(err, config.ErrInvalidSettings):
		return ErrBadRequest(err.Error())
	case errors.Is(err, sensor.ErrInvalidTransition):
		return ErrConflict(err.Error())
	case errors.Is(err, sensor.ErrMeteringUnavailable),
		errors.Is(err, sensor.ErrClockUnavailable),
		errors.Is(err, sensor.ErrTimingUnavailable),
		errors.Is(err, sensor.ErrFirmwareHandshakeTimeout),
		errors.Is(err, sensor.ErrNotDetected):
		return ErrUnavailable(err.Error())
	}
	return ErrInternal(err.Error())
}
