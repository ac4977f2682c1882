package workflow

// State is a node of the reconciliation graph. A thread's checkpoint records
// the node it is parked at.
type State string

const (
	StateStart          State = "START"
	StateReconcile      State = "RECONCILE"
	StateRoute          State = "ROUTE"
	StateCheckApproval  State = "CHECK_APPROVAL"
	StateInterrupted    State = "INTERRUPTED"
	StateExecutePayment State = "EXECUTE_PAYMENT"
	StateFailed         State = "FAILED"
	StateEnd            State = "END"
)

var allStates = []State{
	StateStart,
	StateReconcile,
	StateRoute,
	StateCheckApproval,
	StateInterrupted,
	StateExecutePayment,
	StateFailed,
	StateEnd,
}

var validStates = func() map[State]bool {
	m := make(map[State]bool, len(allStates))
	for _, s := range allStates {
		m[s] = true
	}
	return m
}()

var terminalStates = map[State]bool{
	StateFailed: true,
	StateEnd:    true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsSuspended returns true if the run is halted waiting for external input
func (s State) IsSuspended() bool {
	return s == StateInterrupted
}

// IsRunnable returns true if the engine can execute the node without input
func (s State) IsRunnable() bool {
	return s.IsValid() && !s.IsTerminal() && !s.IsSuspended()
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known graph node
func (s State) IsValid() bool {
	return validStates[s]
}
