package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Internal volume lifecycle events
	VolumeAdded           EventType = "volume_added"
	VolumeChanged         EventType = "volume_changed"
	VolumeRemoved         EventType = "volume_removed"
	VolumeDetectionFailed EventType = "volume_detection_failed"

	// UI resource events
	ResourceAdded   EventType = "resource_added"
	ResourceChanged EventType = "resource_changed"
	ResourceDeleted EventType = "resource_deleted"
)

// IsResource reports whether t is a UI resource event.
func (t EventType) IsResource() bool {
	return t == ResourceAdded || t == ResourceChanged || t == ResourceDeleted
}

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ResourceVolume is the resource kind carried by volume UI events.
const ResourceVolume = "volume"

// Event is the payload published through the bus.
type Event struct {
	Type        EventType  `json:"type"`
	Severity    Severity   `json:"severity"`
	DeviceID    uuid.UUID  `json:"device_id"`
	VolumeID    *uuid.UUID `json:"volume_id,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	// Resource names the resource kind for UI events.
	Resource string            `json:"resource,omitempty"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Payload carries the full record for added/changed events.
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
