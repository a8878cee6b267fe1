// Package preview keeps the latest images and live video frames of every
// camera in memory so they can be served over HTTP.
//
// Store implements the display interfaces a ccd.Device renders into: a
// tabbed viewer per device, one view per dedicated chip mode and a stream
// display. Everything is guarded by one mutex because the INDI dispatch
// goroutine writes while API handlers read.
//
// Callbacks registered by a device (tab closed, stream hidden) must run
// on that device's dispatch goroutine; Options.Dispatch routes them there.
package preview
