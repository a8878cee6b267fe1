// Package influxdb records camera telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each camera
// notification with a numeric reading becomes one point:
//
//	ccd_temperature  device                 celsius
//	ccd_exposure     device, chip           remaining_s, state
//	ccd_frame_rate   device                 instant, average
//	ccd_guide_star   device, chip           x, y, fit, lost
//	ccd_capture      device, chip, format   bytes, failed
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTemperature("CCD Simulator", -10.0)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write errors go to the SetOnError callback.
// All methods are safe for concurrent use.
package influxdb
