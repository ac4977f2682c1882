package workflow

// Trigger is returned by a node to select the outgoing edge
type Trigger string

const (
	TriggerBegin            Trigger = "BEGIN"
	TriggerReconciled       Trigger = "RECONCILED"
	TriggerPaymentPending   Trigger = "PAYMENT_PENDING"
	TriggerFail             Trigger = "FAIL"
	TriggerNothingToPay     Trigger = "NOTHING_TO_PAY"
	TriggerRequireApproval  Trigger = "REQUIRE_APPROVAL"
	TriggerAutoApprove      Trigger = "AUTO_APPROVE"
	TriggerApprove          Trigger = "APPROVE"
	TriggerReject           Trigger = "REJECT"
	TriggerPaymentSucceeded Trigger = "PAYMENT_SUCCEEDED"
	TriggerPaymentFailed    Trigger = "PAYMENT_FAILED"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
