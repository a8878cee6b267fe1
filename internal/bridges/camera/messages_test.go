package camera

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

func TestNewEventMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.FixedZone("CET", 3600))
	vector := &indi.BlobVector{Vector: indi.Vector{Name: "CCD1"}}

	tests := []struct {
		name  string
		event ccd.Event
		check func(t *testing.T, m EventMessage)
	}{
		{
			name:  "exposure",
			event: ccd.Event{Kind: ccd.EventExposure, Chip: ccd.ChipGuide, Value: 2.5, State: indi.StateBusy},
			check: func(t *testing.T, m EventMessage) {
				if m.Chip != "guide" || m.Value == nil || *m.Value != 2.5 || m.State != "Busy" {
					t.Errorf("exposure message = %+v", m)
				}
			},
		},
		{
			name:  "guide star",
			event: ccd.Event{Kind: ccd.EventGuideStar, X: 10, Y: 20, Fit: 0.5},
			check: func(t *testing.T, m EventMessage) {
				if m.Lost || m.X == nil || *m.X != 10 || *m.Fit != 0.5 {
					t.Errorf("guide star message = %+v", m)
				}
			},
		},
		{
			name:  "guide star lost",
			event: ccd.Event{Kind: ccd.EventGuideStar, X: -1, Y: -1, Fit: -1},
			check: func(t *testing.T, m EventMessage) {
				if !m.Lost || m.X != nil {
					t.Errorf("lost guide star message = %+v", m)
				}
			},
		},
		{
			name:  "cooler off",
			event: ccd.Event{Kind: ccd.EventCooler, On: false},
			check: func(t *testing.T, m EventMessage) {
				if m.On == nil || *m.On {
					t.Errorf("cooler message On = %v, want false", m.On)
				}
			},
		},
		{
			name:  "blob",
			event: ccd.Event{Kind: ccd.EventBlobUpdated, Blob: &indi.Blob{Name: "CCD1", Format: ".fits", Size: 42, Vector: vector}},
			check: func(t *testing.T, m EventMessage) {
				if m.Blob == nil || m.Blob.Vector != "CCD1" || m.Blob.Size != 42 || m.Error != "" {
					t.Errorf("blob message = %+v", m)
				}
			},
		},
		{
			name:  "blob not saved",
			event: ccd.Event{Kind: ccd.EventBlobUpdated},
			check: func(t *testing.T, m EventMessage) {
				if m.Blob != nil || m.Error == "" {
					t.Errorf("failed blob message = %+v", m)
				}
			},
		},
		{
			name:  "new image",
			event: ccd.Event{Kind: ccd.EventNewImage, Image: &imaging.Data{Filename: "a.fits", Format: "fits", Width: 640, Height: 480}},
			check: func(t *testing.T, m EventMessage) {
				if m.Image == nil || m.Image.Width != 640 || m.Image.Filename != "a.fits" {
					t.Errorf("new image message = %+v", m.Image)
				}
			},
		},
		{
			name:  "file written with error",
			event: ccd.Event{Kind: ccd.EventFileWritten, Path: "/tmp/a.fits", Size: 10, Err: errors.New("no space")},
			check: func(t *testing.T, m EventMessage) {
				if m.Path != "/tmp/a.fits" || m.Error != "no space" {
					t.Errorf("file written message = %+v", m)
				}
			},
		},
		{
			name:  "video frame",
			event: ccd.Event{Kind: ccd.EventVideoFrame, Frame: make([]byte, 100)},
			check: func(t *testing.T, m EventMessage) {
				if m.Size != 100 {
					t.Errorf("video frame Size = %d, want 100", m.Size)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Device = testDevice
			tt.event.Time = at
			m := NewEventMessage(tt.event)
			if m.Device != testDevice || m.Kind != string(tt.event.Kind) {
				t.Errorf("Device/Kind = %q/%q", m.Device, m.Kind)
			}
			if m.Timestamp.Location() != time.UTC || !m.Timestamp.Equal(at) {
				t.Errorf("Timestamp = %v, want %v in UTC", m.Timestamp, at)
			}
			tt.check(t, m)
		})
	}
}

func TestEventMessage_OmitsUnsetFields(t *testing.T) {
	m := NewEventMessage(ccd.Event{Kind: ccd.EventNotice, Device: testDevice, Message: "hello"})

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{`"value"`, `"chip"`, `"on"`, `"image"`} {
		if strings.Contains(string(data), field) {
			t.Errorf("notice JSON %s contains %s", data, field)
		}
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("notice JSON %s missing message", data)
	}
}

func TestStateMessage_CloneIsIndependent(t *testing.T) {
	s := &StateMessage{Device: testDevice, Exposures: map[string]ExposureState{"primary": {State: "Busy"}}}

	c := s.clone()
	c.Exposures["primary"] = ExposureState{State: "Ok"}

	if s.Exposures["primary"].State != "Busy" {
		t.Error("clone shares the exposures map")
	}
}
