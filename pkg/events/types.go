// Package events defines platform broadcast types and publishers.
package events

// ActionAirplaneModeChanged is broadcast after the airplane mode setting is written.
const ActionAirplaneModeChanged = "airplane_mode_changed"

// BroadcastEvent is a device state change announced to other listeners.
type BroadcastEvent struct {
	Action    string                 `json:"action"`
	Extras    map[string]interface{} `json:"extras,omitempty"`
	Session   string                 `json:"session,omitempty"`
	Timestamp string                 `json:"timestamp"`
}
