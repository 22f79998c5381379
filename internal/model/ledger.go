package model

// SourceID identifies an audit ledger.
type SourceID string

// AuditLedgerEntry is one row from one audit ledger.
type AuditLedgerEntry struct {
	SourceID       SourceID `json:"source_id"`
	ClientCode     string   `json:"client_code"`
	OrderNumber    string   `json:"order_number"`
	RawStatus      string   `json:"raw_status"`
	RawRole        string   `json:"raw_role,omitempty"`
	Closer         string   `json:"closer,omitempty"`
	OriginPriority int      `json:"origin_priority"`
	Row            int      `json:"row,omitempty"`
}

// ResolvedMatch is the Source Resolver's output for one record. Matched holds
// every entry that shares the record's key, in priority order; Winner is the
// first of them or nil when nothing matched.
type ResolvedMatch struct {
	Record  OperationalRecord  `json:"record"`
	Matched []AuditLedgerEntry `json:"matched_entries"`
	Winner  *AuditLedgerEntry  `json:"winning_entry,omitempty"`
}
