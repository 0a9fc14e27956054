package models

import "time"

const (
	SessionVerification = "verification"
	SessionCheckout     = "checkout"
)

const (
	SessionPending   = "pending"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
	SessionCancelled = "cancelled"
)

// Verification outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeExpired = "expired"
)

// Checkout steps, in order.
const (
	StepAwaitingWallet = "awaiting_wallet"
	StepFinalizing     = "finalizing"
	StepRetrievingCode = "retrieving_code"
	StepDone           = "done"
)

// FlowSession tracks one verification or checkout attempt.
type FlowSession struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	Account    string              `json:"account"`
	Status     string              `json:"status"`
	Step       string              `json:"step,omitempty"`
	Outcome    string              `json:"outcome,omitempty"`
	Error      string              `json:"error,omitempty"`
	TxHash     string              `json:"txHash,omitempty"`
	BookingID  string              `json:"bookingId,omitempty"`
	Attributes *IdentityAttributes `json:"attributes,omitempty"`
	Mismatches []string            `json:"mismatches,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Terminal reports whether the session can no longer change.
func (s *FlowSession) Terminal() bool {
	return s.Status != SessionPending
}
