package api

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/nerrad567/gray-logic-indi/internal/preview"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPreviews_Disabled(t *testing.T) {
	srv, _ := testServer(t)

	w := serve(srv, http.MethodGet, "/api/v1/previews/ccd-simulator", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListTabs(t *testing.T) {
	previews := &MockPreviews{tabs: []preview.Tab{
		{ID: 1, Title: "M42_Light_001", Mode: "normal", Format: "fits", Width: 640, Height: 480},
		{ID: 2, Title: "Dark_001", Mode: "calibrate", Format: "fits", Width: 640, Height: 480},
	}}
	srv, _ := testServerWithDeps(t, Deps{Previews: previews})

	w := serve(srv, http.MethodGet, "/api/v1/previews/ccd-simulator", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestTabPNG(t *testing.T) {
	previews := &MockPreviews{png: append(append([]byte{}, pngMagic...), 0, 1, 2)}
	srv, _ := testServerWithDeps(t, Deps{Previews: previews})

	w := serve(srv, http.MethodGet, "/api/v1/previews/ccd-simulator/2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), pngMagic) {
		t.Error("body is not the rendered PNG")
	}
	if previews.lastTabID != 2 {
		t.Errorf("tab = %d, want 2", previews.lastTabID)
	}
}

func TestTabPNG_BadTab(t *testing.T) {
	srv, _ := testServerWithDeps(t, Deps{Previews: &MockPreviews{}})

	for _, tab := range []string{"zero", "0", "-3"} {
		w := serve(srv, http.MethodGet, "/api/v1/previews/ccd-simulator/"+tab, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("tab %q: status = %d, want 400", tab, w.Code)
		}
	}
}

func TestPreviewErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: tab 9", preview.ErrNotFound), http.StatusNotFound},
		{"no image", preview.ErrNoImage, http.StatusNotFound},
		{"other", fmt.Errorf("encode failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServerWithDeps(t, Deps{Previews: &MockPreviews{err: tt.err}})

			w := serve(srv, http.MethodGet, "/api/v1/previews/ccd-simulator/9", "")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestCloseTab(t *testing.T) {
	previews := &MockPreviews{}
	srv, _ := testServerWithDeps(t, Deps{Previews: previews})

	w := serve(srv, http.MethodDelete, "/api/v1/previews/ccd-simulator/1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(previews.closed) != 1 || previews.closed[0] != 1 {
		t.Errorf("closed = %v, want [1]", previews.closed)
	}
}

func TestChipView(t *testing.T) {
	previews := &MockPreviews{png: pngMagic}
	srv, _ := testServerWithDeps(t, Deps{Previews: previews})

	w := serve(srv, http.MethodGet, "/api/v1/devices/ccd-simulator/chips/guide/views/guide", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if previews.lastChip != "guide" || previews.lastMode != "guide" {
		t.Errorf("view = %s/%s, want guide/guide", previews.lastChip, previews.lastMode)
	}
}

func TestStream(t *testing.T) {
	previews := &MockPreviews{
		stream: preview.StreamInfo{Enabled: true, Visible: true, Width: 320, Height: 240, Format: "jpg", Frames: 12},
		frame:  []byte{0xff, 0xd8, 0xff},
		format: "jpg",
	}
	srv, _ := testServerWithDeps(t, Deps{Previews: previews})

	w := serve(srv, http.MethodGet, "/api/v1/devices/ccd-simulator/stream", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stream status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["frames"] != float64(12) || resp["visible"] != true {
		t.Errorf("stream = %v, want 12 frames, visible", resp)
	}

	w = serve(srv, http.MethodGet, "/api/v1/devices/ccd-simulator/stream/frame", "")
	if w.Code != http.StatusOK {
		t.Fatalf("frame status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("frame Content-Type = %q, want image/jpeg", ct)
	}

	w = serve(srv, http.MethodDelete, "/api/v1/devices/ccd-simulator/stream", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("hide status = %d, want 204", w.Code)
	}
	if len(previews.hidden) != 1 || previews.hidden[0] != "CCD Simulator" {
		t.Errorf("hidden = %v, want [CCD Simulator]", previews.hidden)
	}
}

func TestFrameContentType(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"jpg", "image/jpeg"},
		{".jpeg", "image/jpeg"},
		{"png", "image/png"},
		{"raw", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := frameContentType(tt.format); got != tt.want {
			t.Errorf("frameContentType(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
