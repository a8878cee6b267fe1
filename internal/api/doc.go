// Package api implements the HTTP REST API and WebSocket server for the
// INDI camera service.
//
// This package provides:
//   - REST endpoints for listing cameras and reading their state
//   - camera and chip commands, accepted asynchronously (202)
//   - rendered viewer tabs, chip views and the stream display
//   - the capture catalog
//   - a WebSocket hub carrying camera notifications and state changes
//
// # Architecture
//
// The server sits beside the camera bridge. Commands go straight to the
// bridge, which runs them on the INDI dispatch goroutine. Notifications
// reach WebSocket clients in two ways: the bridge broadcasts them through
// the shared hub on "camera.{kind}" channels, and retained states published
// to MQTT are relayed on "camera.state".
//
// Clients subscribe to channels by name or with a trailing wildcard
// ("camera.*").
//
// # Graceful Degradation
//
// MQTT, the preview store and the capture catalog are optional. Routes
// depending on a missing collaborator answer 503.
package api
