package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Camera topics use the scheme graylogic/{category}/indi/{device}[/...].
// Device names are passed through TopicSegment so they form one level.
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// Protocol is the protocol level of every camera topic.
	Protocol = "indi"
)

// Topics provides builders for camera MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvent("CCD Simulator", "file_saved")
//	// Returns: "graylogic/event/indi/ccd-simulator/file_saved"
type Topics struct{}

// TopicSegment turns an INDI device name into a single topic level: lower
// case, spaces as dashes, with the wildcard and separator characters removed.
func TopicSegment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case '/', '+', '#':
		case ' ', '\t':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// DeviceEvent returns the topic for one kind of camera notification.
//
// Example: graylogic/event/indi/ccd-simulator/new_image
func (Topics) DeviceEvent(device, kind string) string {
	return fmt.Sprintf("%s/event/%s/%s/%s", TopicPrefix, Protocol, TopicSegment(device), kind)
}

// DeviceState returns the retained state topic of a camera.
//
// Example: graylogic/state/indi/ccd-simulator
func (Topics) DeviceState(device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, TopicSegment(device))
}

// DeviceCommand returns the topic commands for a camera arrive on.
//
// Example: graylogic/command/indi/ccd-simulator
func (Topics) DeviceCommand(device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, TopicSegment(device))
}

// DeviceAck returns the topic command acknowledgements are published on.
//
// Example: graylogic/ack/indi/ccd-simulator
func (Topics) DeviceAck(device string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, TopicSegment(device))
}

// Health returns the bridge health topic.
//
// Example: graylogic/health/indi
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// SystemStatus returns the service online/offline topic.
//
// Example: graylogic/system/indi/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixSystem, Protocol)
}

// AllDeviceCommands matches the command topic of every camera.
//
// Pattern: graylogic/command/indi/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// AllDeviceEvents matches every camera notification.
//
// Pattern: graylogic/event/indi/+/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/%s/+/+", TopicPrefix, Protocol)
}

// DeviceFromTopic extracts the device segment of a camera topic, or "".
func (Topics) DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != TopicPrefix || parts[2] != Protocol {
		return ""
	}
	return parts[3]
}
