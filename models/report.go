package models

import "encoding/json"

// RecordOutcome is the per-reference result of one upserted record.
type RecordOutcome struct {
	Reference string `json:"reference"`
	Action    string `json:"action"` // upserted, created, updated
}

// Outcome actions
const (
	ActionUpserted = "upserted"
	ActionCreated  = "created"
	ActionUpdated  = "updated"
)

// ImportReport is the response body of one import run. Outcomes is capped
// by the orchestrator; Total always reflects the full feed length.
type ImportReport struct {
	Feed       string          `json:"feed,omitempty"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	ErrorCount int             `json:"error_count"`
	Errors     []string        `json:"errors,omitempty"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Outcomes   []RecordOutcome `json:"outcomes"`
}

// ToJSON renders the report for the run record's metadata column.
func (r *ImportReport) ToJSON() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
