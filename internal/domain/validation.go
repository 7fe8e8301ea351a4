package domain

// RejectReason identifies which rule a rejected row violated.
type RejectReason string

const (
	ReasonTypeMismatch      RejectReason = "type_mismatch"
	ReasonNullValue         RejectReason = "null_value"
	ReasonOutOfRange        RejectReason = "out_of_range"
	ReasonUnknownEntity     RejectReason = "unknown_entity"
	ReasonOffCalendar       RejectReason = "off_calendar"
	ReasonHighBelowLow      RejectReason = "high_below_low"
	ReasonCloseOutsideRange RejectReason = "close_outside_range"
	ReasonNonPositiveClose  RejectReason = "non_positive_close"
	ReasonNegativeVolume    RejectReason = "negative_volume"
	ReasonDuplicateKey      RejectReason = "duplicate_key"
	ReasonPeriodRegression  RejectReason = "period_regression"
)

// RejectedRow pairs a quarantined raw row with the rule it violated.
type RejectedRow struct {
	Ticker string       `json:"ticker" msgpack:"ticker"`
	Key    string       `json:"key" msgpack:"key"` // date or fiscal period
	Reason RejectReason `json:"reason" msgpack:"reason"`
	Column string       `json:"column,omitempty" msgpack:"column,omitempty"`
	Detail string       `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// ValidationResult is the per-batch outcome of schema validation.
// Produced and consumed within a single curation run.
type ValidationResult struct {
	BatchID  string        `json:"batch_id"`
	Accepted int           `json:"accepted"`
	Rejected []RejectedRow `json:"rejected"`
	Warnings []string      `json:"warnings,omitempty"`
}

// RejectedCount returns the number of quarantined rows.
func (r ValidationResult) RejectedCount() int {
	return len(r.Rejected)
}
