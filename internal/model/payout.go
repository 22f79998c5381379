package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierRange is one volume bracket. A nil Max means the bracket is unbounded.
type TierRange struct {
	Min       int             `json:"min_qty"`
	Max       *int            `json:"max_qty,omitempty"`
	UnitValue decimal.Decimal `json:"unit_value"`
}

// Contains reports whether qty falls inside [Min, Max].
func (r TierRange) Contains(qty int) bool {
	if qty < r.Min {
		return false
	}
	return r.Max == nil || qty <= *r.Max
}

// CommissionTier is the ordered bracket table for one role/region key.
type CommissionTier struct {
	RoleRegionKey string      `json:"role_region_key"`
	Ranges        []TierRange `json:"ranges"`
}

// PayoutMode names the rule that produced a line's unit value.
type PayoutMode string

const (
	ModeFlatByCloser PayoutMode = "flat_by_closer"
	ModeFlatByRegion PayoutMode = "flat_by_region"
	ModeFlat         PayoutMode = "flat"
	ModeTiered       PayoutMode = "tiered"
)

// PayoutLine is one row of the final output.
type PayoutLine struct {
	Record        OperationalRecord `json:"record"`
	Key           Key               `json:"key"`
	Decision      PaymentDecision   `json:"decision"`
	Mode          PayoutMode        `json:"mode"`
	RateKey       string            `json:"rate_key,omitempty"`
	Volume        int               `json:"volume,omitempty"`
	UnitValue     decimal.Decimal   `json:"unit_value"`
	AmountDue     decimal.Decimal   `json:"amount_due"`
	DuplicateFlag bool              `json:"duplicate_flag"`
}

// ReviewReason explains why a key needs a human.
type ReviewReason string

const (
	ReviewDuplicateClient ReviewReason = "duplicate_client"
	ReviewPending         ReviewReason = "pending"
)

// ReviewItem is one entry on the manual-review list.
type ReviewItem struct {
	Key      Key          `json:"key"`
	Reason   ReviewReason `json:"reason"`
	Closer   string       `json:"closer,omitempty"`
	Excluded bool         `json:"excluded,omitempty"`
}

// RunSummary is the persisted record of one reconciliation run.
type RunSummary struct {
	ID        string          `json:"id"`
	Account   string          `json:"account"`
	StartedAt time.Time       `json:"started_at"`
	Lines     int             `json:"lines"`
	Payable   int             `json:"payable"`
	Pending   int             `json:"pending"`
	Review    int             `json:"review"`
	TotalDue  decimal.Decimal `json:"total_due"`
}
