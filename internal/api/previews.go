package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-indi/internal/preview"
)

const contentTypePNG = "image/png"

// handleListTabs lists the viewer tabs of a device.
func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	tabs, err := s.previews.Tabs(s.resolveDevice(r))
	if err != nil {
		s.writePreviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tabs": tabs, "count": len(tabs)})
}

// handleTabPNG renders one viewer tab.
func (s *Server) handleTabPNG(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	tab, ok := tabParam(w, r)
	if !ok {
		return
	}
	data, err := s.previews.TabPNG(s.resolveDevice(r), tab)
	if err != nil {
		s.writePreviewError(w, err)
		return
	}
	writeBinary(w, contentTypePNG, data)
}

// handleCloseTab closes a viewer tab, as a user closing it would.
func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	tab, ok := tabParam(w, r)
	if !ok {
		return
	}
	if err := s.previews.CloseTab(s.resolveDevice(r), tab); err != nil {
		s.writePreviewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChipView renders the focus, guide or align view of a chip.
func (s *Server) handleChipView(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	data, err := s.previews.ChipViewPNG(s.resolveDevice(r), chi.URLParam(r, "chip"), chi.URLParam(r, "mode"))
	if err != nil {
		s.writePreviewError(w, err)
		return
	}
	writeBinary(w, contentTypePNG, data)
}

// handleGetStream reports the stream display of a device.
func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	info, err := s.previews.Stream(s.resolveDevice(r))
	if err != nil {
		s.writePreviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleHideStream hides the stream display. The camera stops streaming
// in response.
func (s *Server) handleHideStream(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	if err := s.previews.HideStream(s.resolveDevice(r)); err != nil {
		s.writePreviewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamFrame returns the last raw stream frame.
func (s *Server) handleStreamFrame(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeServiceUnavailable(w, "previews are not enabled")
		return
	}
	data, format, err := s.previews.LatestFrame(s.resolveDevice(r))
	if err != nil {
		s.writePreviewError(w, err)
		return
	}
	writeBinary(w, frameContentType(format), data)
}

// frameContentType maps a frame format (".jpg", "jpeg", "raw") to a MIME type.
func frameContentType(format string) string {
	if format == "" {
		return "application/octet-stream"
	}
	if format[0] != '.' {
		format = "." + format
	}
	if t := mime.TypeByExtension(format); t != "" {
		return t
	}
	return "application/octet-stream"
}

func tabParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tab, err := strconv.Atoi(chi.URLParam(r, "tab"))
	if err != nil || tab < 1 {
		writeBadRequest(w, "tab must be a positive integer")
		return 0, false
	}
	return tab, true
}

func (s *Server) writePreviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preview.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, preview.ErrNoImage):
		writeNotFound(w, "no image loaded")
	default:
		s.logger.Error("preview error", "error", err)
		writeInternalError(w, "failed to render preview")
	}
}
