package mqtt

import "fmt"

// topicPrefix is the root namespace for all Runbeat topics.
const topicPrefix = "runbeat"

// Topics provides type-safe builders for Runbeat's MQTT topic structure.
//
// Topic layout:
//
//	runbeat/system/status               - core online/offline (retained, LWT)
//	runbeat/registry/rename             - inbound entity registry renames
//	runbeat/sensor/{display_id}/state   - outbound retained sensor state mirror
//
// Using the builders instead of string literals keeps the topic grammar
// in one place and greppable.
type Topics struct{}

// SystemStatus returns the core service status topic.
//
// Payload: {"status":"online|offline","client_id":"...","timestamp":"..."}
// Retained so late subscribers see the last known state.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// RegistryRename returns the inbound registry rename notification topic.
//
// Payload: {"old_entity_id":"...","entity_id":"..."}
func (Topics) RegistryRename() string {
	return topicPrefix + "/registry/rename"
}

// SensorState returns the retained state mirror topic for one sensor.
// Subscribers wanting every sensor can use the "+" wildcard in place of
// the display id.
func (Topics) SensorState(displayID string) string {
	return fmt.Sprintf("%s/sensor/%s/state", topicPrefix, displayID)
}
