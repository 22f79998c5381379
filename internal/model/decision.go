package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// PaymentStatus is the closed set of audit outcomes.
type PaymentStatus string

const (
	StatusPending           PaymentStatus = "PENDING"
	StatusApproved          PaymentStatus = "APPROVED"
	StatusRejected          PaymentStatus = "REJECTED"
	StatusPartiallyRejected PaymentStatus = "PARTIALLY_REJECTED"
	StatusApprovedWithNote  PaymentStatus = "APPROVED_WITH_NOTE"
)

// AllStatuses lists every PaymentStatus in display order.
var AllStatuses = []PaymentStatus{
	StatusPending,
	StatusApproved,
	StatusApprovedWithNote,
	StatusRejected,
	StatusPartiallyRejected,
}

// IsPayable is true only for APPROVED and APPROVED_WITH_NOTE.
func (s PaymentStatus) IsPayable() bool {
	return s == StatusApproved || s == StatusApprovedWithNote
}

// RequiresReason reports whether a manual decision with this status must
// carry a free-text reason.
func (s PaymentStatus) RequiresReason() bool {
	return s == StatusRejected || s == StatusPartiallyRejected
}

// ParsePaymentStatus accepts the canonical status names, case-insensitively.
// Ledger vocabulary goes through recon.Classify instead.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	v := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if v == st {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown payment status %q", s)
}

// DecisionSource records who produced a PaymentDecision.
type DecisionSource string

const (
	SourceAutomatic      DecisionSource = "AUTOMATIC"
	SourceManualOverride DecisionSource = "MANUAL_OVERRIDE"
)

// PaymentDecision is the pay/no-pay outcome for one record.
type PaymentDecision struct {
	Status        PaymentStatus  `json:"status"`
	Payable       bool           `json:"is_payable"`
	Source        DecisionSource `json:"source"`
	Reason        string         `json:"reason,omitempty"`
	RawStatus     string         `json:"raw_status,omitempty"`
	WinningSource SourceID       `json:"winning_source,omitempty"`
}

// NewDecision builds a decision with Payable derived from status.
func NewDecision(status PaymentStatus, source DecisionSource) PaymentDecision {
	return PaymentDecision{
		Status:  status,
		Payable: status.IsPayable(),
		Source:  source,
	}
}

// Override is a manual decision recorded by a reviewer for one key.
type Override struct {
	Key    Key           `json:"key"`
	Status PaymentStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	SetAt  time.Time     `json:"set_at"`
}
