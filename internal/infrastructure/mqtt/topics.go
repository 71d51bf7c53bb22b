package mqtt

import "fmt"

// Topic prefixes for the ddcwatch MQTT namespace.
//
// Event topics are transient (one message per hotplug event), display
// state topics are retained so late subscribers see the current state.
const (
	// TopicPrefix is the base for all ddcwatch topics.
	TopicPrefix = "ddcwatch"

	// TopicPrefixSystem is the base for daemon lifecycle topics.
	TopicPrefixSystem = "ddcwatch/system"
)

// Topics provides builders for ddcwatch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DisplayState("card0-DP-1")
//	// Returns: "ddcwatch/display/card0-DP-1/state"
type Topics struct{}

// Event returns the topic for a display status event.
//
// Example: ddcwatch/event/connected
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// DisplayState returns the retained state topic for one connector.
//
// Example: ddcwatch/display/card0-DP-1/state
func (Topics) DisplayState(connector string) string {
	return fmt.Sprintf("%s/display/%s/state", TopicPrefix, connector)
}

// CommandRescan returns the topic that triggers an immediate bus rescan.
//
// Example: ddcwatch/command/rescan
func (Topics) CommandRescan() string {
	return fmt.Sprintf("%s/command/rescan", TopicPrefix)
}

// SystemStatus returns the daemon status topic, also used for the LWT.
//
// Example: ddcwatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every display status event.
//
// Pattern: ddcwatch/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllDisplayStates returns a pattern matching all retained display states.
//
// Pattern: ddcwatch/display/+/state
func (Topics) AllDisplayStates() string {
	return fmt.Sprintf("%s/display/+/state", TopicPrefix)
}

// AllCommands returns a pattern matching all command topics.
//
// Pattern: ddcwatch/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllTopics returns a pattern matching all ddcwatch topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: ddcwatch/#
func (Topics) AllTopics() string {
	return "ddcwatch/#"
}
