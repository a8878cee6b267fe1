// Package mqtt provides MQTT client connectivity for the Gray Logic INDI core.
//
// Camera notifications are published under graylogic/event/indi/{device}/{kind},
// retained camera state under graylogic/state/indi/{device} and the bridge
// heartbeat under graylogic/health/indi. Commands for a camera arrive on
// graylogic/command/indi/{device}.
//
// The client reconnects with exponential backoff and restores its
// subscriptions. A Last Will on graylogic/system/indi/status reports an
// unexpected disconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceEvent("CCD Simulator", "file_saved")
//	client.PublishJSON(topic, payload, false)
package mqtt
