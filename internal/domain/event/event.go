package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and handlers
const (
	KeyInvoiceID = "invoice_id"
	KeyVendorID  = "vendor_id"
	KeyAmount    = "amount_cents"
	KeyQuestion  = "question"
	KeyStatus    = "status"
	KeyNode      = "node"
	KeyReference = "reference"
	KeyError     = "error"
	KeyWaiting   = "waiting_seconds"
)

// Event is a fact about a thread, published after the checkpoint that caused it is committed
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ThreadID      string                 `json:"thread_id"`
	RunID         string                 `json:"run_id"`
	Version       int64                  `json:"version"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event correlated by run id
func NewEvent(eventType Type, threadID, runID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ThreadID:      threadID,
		RunID:         runID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: runID,
	}
}

// AtVersion returns a copy stamped with the checkpoint version that produced it
func (e *Event) AtVersion(version int64) *Event {
	c := *e
	c.Version = version
	return &c
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
