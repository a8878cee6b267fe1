package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTemperature = "ccd_temperature"
	MeasurementExposure    = "ccd_exposure"
	MeasurementFrameRate   = "ccd_frame_rate"
	MeasurementGuideStar   = "ccd_guide_star"
	MeasurementCapture     = "ccd_capture"
)

// WriteTemperature records the sensor temperature of a camera in °C.
func (c *Client) WriteTemperature(device string, celsius float64) {
	c.writePoint(MeasurementTemperature,
		map[string]string{"device": device},
		map[string]interface{}{"celsius": celsius})
}

// WriteExposure records the seconds remaining of a chip's exposure and the
// vector state ("Busy", "Ok", "Alert").
func (c *Client) WriteExposure(device, chip string, remaining float64, state string) {
	c.writePoint(MeasurementExposure,
		map[string]string{"device": device, "chip": chip},
		map[string]interface{}{"remaining_s": remaining, "state": state})
}

// WriteFrameRate records the instant and average streaming frame rate.
func (c *Client) WriteFrameRate(device string, instant, average float64) {
	c.writePoint(MeasurementFrameRate,
		map[string]string{"device": device},
		map[string]interface{}{"instant": instant, "average": average})
}

// WriteGuideStar records a guide star fit. A lost star is recorded with
// lost=true and no position.
func (c *Client) WriteGuideStar(device, chip string, x, y, fit float64) {
	fields := map[string]interface{}{"lost": true}
	if x != -1 || y != -1 || fit != -1 {
		fields = map[string]interface{}{"x": x, "y": y, "fit": fit, "lost": false}
	}
	c.writePoint(MeasurementGuideStar,
		map[string]string{"device": device, "chip": chip},
		fields)
}

// WriteCapture records a written capture file.
func (c *Client) WriteCapture(device, chip, format string, bytes int, failed bool) {
	c.writePoint(MeasurementCapture,
		map[string]string{"device": device, "chip": chip, "format": format},
		map[string]interface{}{"bytes": bytes, "failed": failed})
}

// WritePoint writes a custom point stamped now. Tags should be low
// cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(measurement, tags, fields)
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.points.Add(1)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	c.WritePointWithTime(measurement, tags, fields, now())
}
