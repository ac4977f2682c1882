package event

// Type identifies the type of domain event
type Type string

const (
	TypeRunStarted      Type = "run.started"
	TypeRunInterrupted  Type = "run.interrupted"
	TypeRunResumed      Type = "run.resumed"
	TypePaymentExecuted Type = "payment.executed"
	TypeRunCompleted    Type = "run.completed"
	TypeRunFailed       Type = "run.failed"
	TypeRunCancelled    Type = "run.cancelled"
	TypeApprovalStale   Type = "approval.stale"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRunStarted,
		TypeRunInterrupted,
		TypeRunResumed,
		TypePaymentExecuted,
		TypeRunCompleted,
		TypeRunFailed,
		TypeRunCancelled,
		TypeApprovalStale:
		return true
	default:
		return false
	}
}
