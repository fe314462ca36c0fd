package mqtt

import "fmt"

// Topic roots used by the bridge.
const (
	// TopicPrefixEvents is the base for normalized device events.
	TopicPrefixEvents = "vera/events"

	// TopicBridgeStatus carries the bridge's online/offline status (retained).
	TopicBridgeStatus = "vera/bridge/status"

	// TopicSinkIP carries sink address announcements from the dashboard host.
	TopicSinkIP = "client/con_ip"

	// TopicDataRequest carries on-demand snapshot requests.
	TopicDataRequest = "read/data"

	// unknownSegment replaces an empty room or device name in a topic.
	unknownSegment = "unknown"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceEvent("Nappali", "Lámpa")
//	// Returns: "vera/events/Nappali/Lámpa"
type Topics struct{}

// DeviceEvent returns the topic a normalized device event is published on.
// Segment values are used verbatim; an empty segment becomes "unknown".
//
// Example: vera/events/Nappali/Lámpa
func (Topics) DeviceEvent(room, device string) string {
	if room == "" {
		room = unknownSegment
	}
	if device == "" {
		device = unknownSegment
	}
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvents, room, device)
}

// AllDeviceEvents returns a wildcard matching every device event.
func (Topics) AllDeviceEvents() string {
	return TopicPrefixEvents + "/#"
}

// BridgeStatus returns the bridge status topic.
func (Topics) BridgeStatus() string {
	return TopicBridgeStatus
}

// SinkIP returns the topic carrying sink address updates.
func (Topics) SinkIP() string {
	return TopicSinkIP
}

// DataRequest returns the topic carrying snapshot requests.
func (Topics) DataRequest() string {
	return TopicDataRequest
}
