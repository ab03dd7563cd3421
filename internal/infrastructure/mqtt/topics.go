package mqtt

import "strings"

// Topic layout:
//
//	perimeter/command/{kind}/{device_id}   core → device
//	perimeter/sensor/{device_id}/event     sensor → core, detections
//	perimeter/sensor/{device_id}/status    sensor → core, health
//	perimeter/system/status                core presence, retained
const (
	root = "perimeter"

	// SensorEvents matches detections from every sensor.
	SensorEvents = root + "/sensor/+/event"

	// SensorStatus matches health reports from every sensor.
	SensorStatus = root + "/sensor/+/status"

	// SystemStatus carries the core's retained online/offline presence.
	SystemStatus = root + "/system/status"
)

// SensorReport is the last level of a sensor topic.
type SensorReport string

const (
	ReportEvent  SensorReport = "event"
	ReportStatus SensorReport = "status"
)

// CommandTopic is the topic a device of the given kind listens on.
func CommandTopic(kind, deviceID string) (string, error) {
	if !validLevel(kind) || !validLevel(deviceID) {
		return "", ErrInvalidTopic
	}
	return root + "/command/" + kind + "/" + deviceID, nil
}

// SensorTopic is the topic a sensor publishes report on.
func SensorTopic(deviceID string, report SensorReport) string {
	return root + "/sensor/" + deviceID + "/" + string(report)
}

// ParseSensorTopic splits perimeter/sensor/{id}/{report}.
func ParseSensorTopic(topic string) (deviceID string, report SensorReport, ok bool) {
	rest, found := strings.CutPrefix(topic, root+"/sensor/")
	if !found {
		return "", "", false
	}
	id, last, found := strings.Cut(rest, "/")
	if !found || !validLevel(id) {
		return "", "", false
	}
	switch r := SensorReport(last); r {
	case ReportEvent, ReportStatus:
		return id, r, true
	default:
		return "", "", false
	}
}

// validLevel reports whether s can stand alone as one topic level.
func validLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}
