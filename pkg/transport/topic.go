package transport

import (
	"fmt"
	"strings"
)

const (
	topicRoot    = "devices"
	scheduleLeaf = "schedule"
	ackLeaf      = "ack"

	// AckWildcard matches the acknowledgement topic of every device.
	AckWildcard = topicRoot + "/+/" + ackLeaf
)

func ScheduleTopic(deviceID string) string {
	return topicRoot + "/" + deviceID + "/" + scheduleLeaf
}

func AckTopic(deviceID string) string {
	return topicRoot + "/" + deviceID + "/" + ackLeaf
}

// DeviceIDFromTopic extracts the device id from a schedule or ack topic.
func DeviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != topicRoot || parts[1] == "" ||
		(parts[2] != scheduleLeaf && parts[2] != ackLeaf) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[1], nil
}

// ValidateDeviceID rejects ids that would break the topic structure.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" || strings.ContainsAny(deviceID, "/+#") {
		return fmt.Errorf("%w: device id %q", ErrInvalidTopic, deviceID)
	}
	return nil
}

// MatchTopic reports whether topic matches an MQTT style pattern with
// single level "+" and trailing multi level "#" wildcards.
func MatchTopic(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, level := range p {
		if level == "#" {
			return i == len(p)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}
