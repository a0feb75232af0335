package models_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/hardware"
	"github.com/micro-nova/ov5640-go/internal/models"
	"github.com/micro-nova/ov5640-go/internal/sensor"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", sensor.ErrInvalidArgument), 400, "BAD_REQUEST"},
		{fmt.Errorf("wrap: %w", config.ErrInvalidSettings), 400, "BAD_REQUEST"},
		{sensor.ErrInvalidTransition, 409, "CONFLICT"},
		{sensor.ErrMeteringUnavailable, 503, "UNAVAILABLE"},
		{sensor.ErrClockUnavailable, 503, "UNAVAILABLE"},
		{sensor.ErrTimingUnavailable, 503, "UNAVAILABLE"},
		{fmt.Errorf("af: %w", sensor.ErrFirmwareHandshakeTimeout), 503, "UNAVAILABLE"},
		{sensor.ErrNotDetected, 503, "UNAVAILABLE"},
		{&hardware.BusError{Op: "read", Addr: 0x3029, Err: errors.New("nak")}, 500, "INTERNAL"},
		{models.ErrNotFound("no capture"), 404, "NOT_FOUND"},
	}
	for _, tc := range tests {
		got := models.FromError(tc.err)
		if got == nil {
			t.Fatalf("FromError(%v) = nil", tc.err)
		}
		if got.Status != tc.status || got.Code != tc.code {
			t.Errorf("FromError(%v) = %d %s, want %d %s", tc.err, got.Status, got.Code, tc.status, tc.code)
		}
	}
	if got := models.FromError(nil); got != nil {
		t.Errorf("FromError(nil) = %v, want nil", got)
	}
}

func TestAppErrorJSON(t *testing.T) {
	data, err := json.Marshal(models.ErrConflict("busy"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"error":"CONFLICT","message":"busy"}`; got != want {
		t.Errorf("JSON = %s, want %s", got, want)
	}
}

func TestSettingsUpdate_Apply(t *testing.T) {
	s := config.DefaultSettings()
	night := uint32(2)
	mode := "fixed"
	bias := -1
	flip := true
	models.SettingsUpdate{NightMode: &night, DenoiseMode: &mode, ExposureBias: &bias, VFlip: &flip}.Apply(&s)

	want := config.DefaultSettings()
	want.NightMode = 2
	want.DenoiseMode = "fixed"
	want.ExposureBias = -1
	want.VFlip = true
	if s != want {
		t.Errorf("Apply = %+v, want %+v", s, want)
	}
}

func TestSettingsUpdate_DecodeOmitted(t *testing.T) {
	var u models.SettingsUpdate
	if err := json.Unmarshal([]byte(`{"manual_gain": 32}`), &u); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	s := config.DefaultSettings()
	u.Apply(&s)
	want := config.DefaultSettings()
	want.ManualGain = 32
	if s != want {
		t.Errorf("Apply = %+v, want %+v", s, want)
	}
}

func TestSnapshot_DeepCopy(t *testing.T) {
	s := models.Snapshot{
		Focus:       models.FocusState{Zone: &sensor.Window{X1: 1}},
		LastCapture: &models.Capture{ID: "a"},
	}
	cp := s.DeepCopy()
	cp.Focus.Zone.X1 = 2
	cp.LastCapture.ID = "b"
	if s.Focus.Zone.X1 != 1 || s.LastCapture.ID != "a" {
		t.Error("DeepCopy shares pointers with the source snapshot")
	}
}

func TestFocusStateJSON(t *testing.T) {
	data, err := json.Marshal(models.FocusState{Status: sensor.AFReached, Mode: "single"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["status"] != "reached" {
		t.Errorf("status = %v, want reached", m["status"])
	}
	if _, ok := m["polled"]; ok {
		t.Error("zero poll time encoded")
	}
}
