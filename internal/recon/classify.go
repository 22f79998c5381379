package recon

import (
	"github.com/sells-group/payout-recon/internal/model"
)

// statusVocabulary maps normalized ledger text to a PaymentStatus. The
// ledgers are maintained in Portuguese; English spellings are accepted too.
var statusVocabulary = map[string]model.PaymentStatus{
	"APROVADO":      model.StatusApproved,
	"N.C APROVADO":  model.StatusApproved,
	"N.C. APROVADO": model.StatusApproved,
	"NC APROVADO":   model.StatusApproved,
	"APPROVED":      model.StatusApproved,
	"N.C APPROVED":  model.StatusApproved,
	"N.C. APPROVED": model.StatusApproved,
	"NC APPROVED":   model.StatusApproved,

	"APROVADO COM RESSALVA": model.StatusApprovedWithNote,
	"APROVADO C/ RESSALVA":  model.StatusApprovedWithNote,
	"APPROVED WITH NOTE":    model.StatusApprovedWithNote,

	"REPROVADO": model.StatusRejected,
	"REJECTED":  model.StatusRejected,

	"REPROVADO PARCIAL":      model.StatusPartiallyRejected,
	"PARCIALMENTE REPROVADO": model.StatusPartiallyRejected,
	"PARTIALLY REJECTED":     model.StatusPartiallyRejected,
}

// ClassifyStatus maps raw ledger text to a PaymentStatus. Unrecognized text is
// PENDING: unknown vocabulary means not yet audited.
func ClassifyStatus(raw string) model.PaymentStatus {
	if st, ok := statusVocabulary[NormalizeName(raw)]; ok {
		return st
	}
	return model.StatusPending
}

// Classify produces the automatic decision for a resolved match. A nil winner
// (no audit evidence) is PENDING.
func Classify(winner *model.AuditLedgerEntry) model.PaymentDecision {
	if winner == nil {
		return model.NewDecision(model.StatusPending, model.SourceAutomatic)
	}
	d := model.NewDecision(ClassifyStatus(winner.RawStatus), model.SourceAutomatic)
	d.RawStatus = winner.RawStatus
	d.WinningSource = winner.SourceID
	return d
}

// Decide applies a manual override on top of an automatic decision. The
// override always wins; a nil override leaves the automatic decision alone.
func Decide(auto model.PaymentDecision, ov *model.Override) model.PaymentDecision {
	if ov == nil {
		return auto
	}
	d := model.NewDecision(ov.Status, model.SourceManualOverride)
	d.Reason = ov.Reason
	d.RawStatus = auto.RawStatus
	d.WinningSource = auto.WinningSource
	return d
}
