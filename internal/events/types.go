// Package events provides the broadcast hub that pushes session and library
// changes to connected subscribers.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Session events
	EventSessionStart  EventType = "session.start"
	EventSessionUpdate EventType = "session.update"
	EventSessionStop   EventType = "session.stop"

	// Library events
	EventLibraryUpdate EventType = "library.update"

	// Conversion events
	EventConversionStarted   EventType = "conversion.started"
	EventConversionProgress  EventType = "conversion.progress"
	EventConversionCompleted EventType = "conversion.completed"
	EventConversionFailed    EventType = "conversion.failed"
	EventConversionCancelled EventType = "conversion.cancelled"
)

// Event is a transient message pushed to all subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Stats describes hub activity since startup.
type Stats struct {
	TotalEvents       int64            `json:"total_events"`
	EventsByType      map[string]int64 `json:"events_by_type"`
	DroppedEvents     int64            `json:"dropped_events"`
	ActiveSubscribers int              `json:"active_subscribers"`
	RecentEvents      []Event          `json:"recent_events"`
}

// NewEvent creates an event with the given type and payload.
func NewEvent(eventType EventType, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}
