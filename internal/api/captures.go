package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-indi/internal/catalog"
)

// handleListCaptures returns catalogued captures, newest first.
//
// Query parameters: device, chip, since (RFC 3339), failed (bool),
// limit, offset.
func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeServiceUnavailable(w, "capture catalog is not enabled")
		return
	}

	filter, err := parseCaptureFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.captures.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list captures", "error", err)
		writeInternalError(w, "failed to list captures")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetCapture returns a single capture record.
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeServiceUnavailable(w, "capture catalog is not enabled")
		return
	}

	c, err := s.captures.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeNotFound(w, "capture not found")
			return
		}
		s.logger.Error("failed to get capture", "error", err)
		writeInternalError(w, "failed to get capture")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func parseCaptureFilter(q url.Values) (catalog.Filter, error) {
	f := catalog.Filter{
		Device: q.Get("device"),
		Chip:   q.Get("chip"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = t
	}
	if v := q.Get("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("failed must be true or false")
		}
		f.Failed = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
