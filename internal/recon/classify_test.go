package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/payout-recon/internal/model"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want model.PaymentStatus
	}{
		{"aprovado", model.StatusApproved},
		{"APROVADO", model.StatusApproved},
		{" Aprovado ", model.StatusApproved},
		{"N.C APROVADO", model.StatusApproved},
		{"nc aprovado", model.StatusApproved},
		{"approved", model.StatusApproved},
		{"Aprovado com ressalva", model.StatusApprovedWithNote},
		{"REPROVADO", model.StatusRejected},
		{"rejected", model.StatusRejected},
		{"Reprovado  Parcial", model.StatusPartiallyRejected},
		{"partially rejected", model.StatusPartiallyRejected},
		{"PENDENTE", model.StatusPending},
		{"AJUSTAR", model.StatusPending},
		{"-", model.StatusPending},
		{"nan", model.StatusPending},
		{"", model.StatusPending},
		{"APROVADO?", model.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyStatus(tt.raw))
		})
	}
}

func TestClassify_NoWinnerIsPending(t *testing.T) {
	t.Parallel()

	d := Classify(nil)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.False(t, d.Payable)
	assert.Equal(t, model.SourceAutomatic, d.Source)
}

func TestClassify_CarriesProvenance(t *testing.T) {
	t.Parallel()

	d := Classify(&model.AuditLedgerEntry{SourceID: "51", RawStatus: "Reprovado Parcial"})
	assert.Equal(t, model.StatusPartiallyRejected, d.Status)
	assert.False(t, d.Payable)
	assert.Equal(t, model.SourceID("51"), d.WinningSource)
	assert.Equal(t, "Reprovado Parcial", d.RawStatus)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	auto := Classify(&model.AuditLedgerEntry{SourceID: "60", RawStatus: "APROVADO"})

	t.Run("no override keeps automatic", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, auto, Decide(auto, nil))
	})

	t.Run("override leaves terminal automatic state", func(t *testing.T) {
		t.Parallel()
		d := Decide(auto, &model.Override{Status: model.StatusRejected, Reason: "foto ausente"})
		assert.Equal(t, model.StatusRejected, d.Status)
		assert.False(t, d.Payable)
		assert.Equal(t, model.SourceManualOverride, d.Source)
		assert.Equal(t, "foto ausente", d.Reason)
		assert.Equal(t, model.SourceID("60"), d.WinningSource)
	})

	t.Run("override can approve a pending record", func(t *testing.T) {
		t.Parallel()
		d := Decide(Classify(nil), &model.Override{Status: model.StatusApprovedWithNote})
		assert.True(t, d.Payable)
		assert.Equal(t, model.SourceManualOverride, d.Source)
	})
}
