package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{device}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/cooler", s.deviceCommand(camera.CmdSetCooler))
				r.Put("/temperature", s.deviceCommand(camera.CmdSetTemperature))
				r.Put("/transfer-format", s.deviceCommand(camera.CmdSetTransferFormat))
				r.Put("/telescope", s.deviceCommand(camera.CmdSetTelescope))
				r.Put("/gain", s.deviceCommand(camera.CmdSetGain))
				r.Put("/offset", s.deviceCommand(camera.CmdSetOffset))
				r.Put("/sequence", s.deviceCommand(camera.CmdSetSequence))
				r.Put("/capture-directory", s.deviceCommand(camera.CmdSetDirectory))
				r.Put("/filter", s.deviceCommand(camera.CmdSetFilter))
				r.Put("/upload-mode", s.deviceCommand(camera.CmdSetUploadMode))
				r.Put("/looping", s.deviceCommand(camera.CmdSetLooping))
				r.Put("/video-stream", s.deviceCommand(camera.CmdSetVideoStream))
				r.Post("/recording", s.deviceCommand(camera.CmdStartRecording))
				r.Delete("/recording", s.deviceCommand(camera.CmdStopRecording))

				r.Route("/chips/{chip}", func(r chi.Router) {
					r.Post("/capture", s.chipCommand(camera.CmdCapture))
					r.Post("/abort", s.chipCommand(camera.CmdAbort))
					r.Put("/frame", s.chipCommand(camera.CmdSetFrame))
					r.Delete("/frame", s.chipCommand(camera.CmdResetFrame))
					r.Put("/binning", s.chipCommand(camera.CmdSetBinning))
					r.Put("/frame-type", s.chipCommand(camera.CmdSetFrameType))
					r.Put("/iso", s.chipCommand(camera.CmdSetISO))
					r.Get("/views/{mode}", s.handleChipView)
				})

				r.Get("/stream", s.handleGetStream)
				r.Delete("/stream", s.handleHideStream)
				r.Get("/stream/frame", s.handleStreamFrame)
			})
		})

		r.Route("/previews/{device}", func(r chi.Router) {
			r.Get("/", s.handleListTabs)
			r.Get("/{tab}", s.handleTabPNG)
			r.Delete("/{tab}", s.handleCloseTab)
		})

		r.Route("/captures", func(r chi.Router) {
			r.Get("/", s.handleListCaptures)
			r.Get("/{id}", s.handleGetCapture)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the service and bridge health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.cameras.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridge":  health,
	})
}
