// Package camera bridges INDI cameras to the rest of Gray Logic.
//
// The Bridge is the indi.Handler of an INDI session. It creates a
// ccd.Device for every driver that exposes camera properties and fans the
// device notifications out to:
//
//   - MQTT: graylogic/event/indi/{device}/{kind} and retained state on
//     graylogic/state/indi/{device}
//   - InfluxDB telemetry (temperature, exposure, frame rate, guide star,
//     captures)
//   - the capture catalog, for every completed file write
//   - websocket clients, on "camera.{kind}" channels
//
// Commands arrive on graylogic/command/indi/{device} or through Execute and
// always run on the session dispatch goroutine. Each MQTT command is
// acknowledged on graylogic/ack/indi/{device}.
//
// A HealthReporter publishes the session status to graylogic/health/indi
// at a fixed interval.
package camera
