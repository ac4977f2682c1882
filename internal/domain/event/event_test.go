package event

import (
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"run started", TypeRunStarted, true},
		{"run interrupted", TypeRunInterrupted, true},
		{"payment executed", TypePaymentExecuted, true},
		{"approval stale", TypeApprovalStale, true},
		{"unknown", Type("run.exploded"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeRunInterrupted, "thread-1", "run-1", map[string]interface{}{KeyInvoiceID: "INV-001"})

	if evt.ID == "" {
		t.Error("ID should be generated")
	}
	if evt.ThreadID != "thread-1" || evt.RunID != "run-1" {
		t.Errorf("unexpected identifiers: %s / %s", evt.ThreadID, evt.RunID)
	}
	if evt.CorrelationID != "run-1" {
		t.Errorf("CorrelationID = %s, want run-1", evt.CorrelationID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if got := evt.GetPayloadString(KeyInvoiceID); got != "INV-001" {
		t.Errorf("GetPayloadString() = %s, want INV-001", got)
	}

	other := NewEvent(TypeRunInterrupted, "thread-1", "run-1", nil)
	if other.ID == evt.ID {
		t.Error("event IDs should be unique")
	}
	if other.Payload == nil {
		t.Error("nil payload should be replaced by an empty map")
	}
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	orig := NewEvent(TypePaymentExecuted, "t", "r", map[string]interface{}{KeyAmount: int64(100)})
	updated := orig.WithPayload(KeyReference, "PAY-1")

	if _, ok := orig.Payload[KeyReference]; ok {
		t.Error("WithPayload() must not mutate the original")
	}
	if updated.GetPayloadString(KeyReference) != "PAY-1" {
		t.Error("WithPayload() should add the key")
	}
	if updated.GetPayloadInt(KeyAmount) != 100 {
		t.Error("WithPayload() should keep existing keys")
	}
	if updated.ID != orig.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_AtVersion(t *testing.T) {
	orig := NewEvent(TypeRunCompleted, "t", "r", nil)
	stamped := orig.AtVersion(7)
	if stamped.Version != 7 || orig.Version != 0 {
		t.Errorf("AtVersion() versions = %d / %d", stamped.Version, orig.Version)
	}
}

func TestEvent_GetPayloadInt(t *testing.T) {
	evt := NewEvent(TypeRunCompleted, "t", "r", map[string]interface{}{
		"i":   7,
		"i64": int64(8),
		"f":   float64(9),
		"s":   "x",
	})
	tests := map[string]int64{"i": 7, "i64": 8, "f": 9, "s": 0, "missing": 0}
	for key, want := range tests {
		if got := evt.GetPayloadInt(key); got != want {
			t.Errorf("GetPayloadInt(%q) = %d, want %d", key, got, want)
		}
	}
}
