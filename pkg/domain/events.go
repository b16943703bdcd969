package domain

import (
	"time"
)

// EventType names an externally observable state transition.
type EventType string

// Event types appended by successful mutations.
const (
	EventPlatformInitialized   EventType = "platform.initialized"
	EventPlatformConfigUpdated EventType = "platform.config_updated"
	EventDatasetRegistered     EventType = "dataset.registered"
	EventDatasetUpdated        EventType = "dataset.updated"
	EventDatasetHashUpdated    EventType = "dataset.hash_updated"
	EventDatasetVerified       EventType = "dataset.verified"
	EventDatasetPurchased      EventType = "dataset.purchased"
	EventDatasetClosed         EventType = "dataset.closed"
	EventAccessGranted         EventType = "access.granted"
	EventAccessRecorded        EventType = "access.recorded"
	EventFundsDeposited        EventType = "funds.deposited"
	EventFundsWithdrawn        EventType = "funds.withdrawn"
)

// Event is an immutable notification committed in the same transaction as the
// mutation it describes. Sequence is gap-free and strictly increasing.
type Event struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Type      EventType         `json:"type"`
	Entity    EntityType        `json:"entity"`
	RecordID  string            `json:"record_id"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	if e.Fields != nil {
		fields := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		e.Fields = fields
	}
	return e
}
