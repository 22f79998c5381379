// Package model holds the domain types shared by the reconciliation packages.
package model

import (
	"time"
)

// Key is the canonical composite business key (client code, order number)
// used to join operational records to ledger entries. Build it with
// recon.NormalizeKey; the zero value never matches anything.
type Key struct {
	Client string `json:"client_code"`
	Order  string `json:"order_number"`
}

// String renders the key as CLIENT|ORDER.
func (k Key) String() string {
	return k.Client + "|" + k.Order
}

// Empty reports whether either half of the key is blank.
func (k Key) Empty() bool {
	return k.Client == "" || k.Order == ""
}

// OperationalRecord is one closed work order or sale pulled from the ticketing API.
type OperationalRecord struct {
	Account       string     `json:"account"`
	ClientCode    string     `json:"client_code"`
	OrderNumber   string     `json:"order_number"`
	CloserName    string     `json:"closer_name"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	RoleHint      string     `json:"role_hint"`
	Region        string     `json:"region"`
	State         string     `json:"state,omitempty"`
	City          string     `json:"city,omitempty"`
	OrderType     string     `json:"order_type,omitempty"`
	ServiceStatus string     `json:"service_status,omitempty"`
}

// ClosedAfter reports whether r closed strictly after other. A nil timestamp
// is never after anything.
func (r OperationalRecord) ClosedAfter(other OperationalRecord) bool {
	if r.ClosedAt == nil {
		return false
	}
	if other.ClosedAt == nil {
		return true
	}
	return r.ClosedAt.After(*other.ClosedAt)
}
