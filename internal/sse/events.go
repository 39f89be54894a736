// Package sse implements Server-Sent Events for real-time generation progress
// and catalog updates.
package sse

import (
	"time"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventGenerationProgress represents a narration generation progress update.
	EventGenerationProgress EventType = "generation.progress"
	// EventGenerationComplete represents a narration generation completion.
	EventGenerationComplete EventType = "generation.complete"
	// EventGenerationFailed represents a narration generation failure.
	EventGenerationFailed EventType = "generation.failed"
	// EventGenerationCanceled represents a user-canceled narration generation.
	EventGenerationCanceled EventType = "generation.canceled"

	// EventCatalogUpdated represents a catalog mutation clients should refetch on.
	EventCatalogUpdated EventType = "catalog.updated"

	// EventRepairComplete represents a finished library repair sweep.
	EventRepairComplete EventType = "repair.complete"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// GenerationProgressEventData is the data payload for generation progress events.
type GenerationProgressEventData struct {
	SegmentID string `json:"segment_id"`
	Progress  int    `json:"progress"`
}

// GenerationCompleteEventData is the data payload for generation completion events.
type GenerationCompleteEventData struct {
	SegmentID string `json:"segment_id"`
	AudioURL  string `json:"audio_url"`
}

// GenerationFailedEventData is the data payload for generation failure events.
type GenerationFailedEventData struct {
	SegmentID string `json:"segment_id"`
	Error     string `json:"error"`
	TimedOut  bool   `json:"timed_out"`
}

// GenerationCanceledEventData is the data payload for generation cancel events.
type GenerationCanceledEventData struct {
	SegmentID string `json:"segment_id"`
}

// CatalogUpdatedEventData is the data payload for catalog update events.
type CatalogUpdatedEventData struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// RepairCompleteEventData is the data payload for repair completion events.
type RepairCompleteEventData struct {
	Repaired int    `json:"repaired"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewGenerationProgressEvent creates a generation.progress event.
func NewGenerationProgressEvent(segmentID string, progress int) Event {
	return Event{
		Type:      EventGenerationProgress,
		Data:      GenerationProgressEventData{SegmentID: segmentID, Progress: progress},
		Timestamp: time.Now(),
	}
}

// NewGenerationCompleteEvent creates a generation.complete event.
func NewGenerationCompleteEvent(segmentID, audioURL string) Event {
	return Event{
		Type:      EventGenerationComplete,
		Data:      GenerationCompleteEventData{SegmentID: segmentID, AudioURL: audioURL},
		Timestamp: time.Now(),
	}
}

// NewGenerationFailedEvent creates a generation.failed event.
func NewGenerationFailedEvent(segmentID, errMsg string, timedOut bool) Event {
	return Event{
		Type:      EventGenerationFailed,
		Data:      GenerationFailedEventData{SegmentID: segmentID, Error: errMsg, TimedOut: timedOut},
		Timestamp: time.Now(),
	}
}

// NewGenerationCanceledEvent creates a generation.canceled event.
func NewGenerationCanceledEvent(segmentID string) Event {
	return Event{
		Type:      EventGenerationCanceled,
		Data:      GenerationCanceledEventData{SegmentID: segmentID},
		Timestamp: time.Now(),
	}
}

// NewCatalogUpdatedEvent creates a catalog.updated event.
func NewCatalogUpdatedEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventCatalogUpdated,
		Data:      CatalogUpdatedEventData{UpdatedAt: now},
		Timestamp: now,
	}
}

// NewRepairCompleteEvent creates a repair.complete event.
func NewRepairCompleteEvent(repaired, failed int, errMsg string) Event {
	return Event{
		Type:      EventRepairComplete,
		Data:      RepairCompleteEventData{Repaired: repaired, Failed: failed, Error: errMsg},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
