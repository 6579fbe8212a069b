package sync

import "sort"

// State is the lifecycle position of one element within a sync operation.
//
//	pending -> validating -> rejected        (failed a local gate)
//	                      -> skipped         (dry run stopped here)
//	                      -> in_flight -> succeeded
//	                                   -> failed
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateSkipped    State = "skipped"
	StateInFlight   State = "in_flight"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Record is the per-element ledger entry for a sync operation. Every element
// that enters an operation produces exactly one record; nothing is dropped on
// failure or cancellation.
type Record struct {
	Ref       string `json:"ref"`
	State     State  `json:"state"`
	Detail    string `json:"detail,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`

	// Err is the terminal error for rejected and failed records, nil otherwise.
	Err error `json:"-"`
}

// BulkResult is the complete ledger of a bulk operation plus per-state counts.
type BulkResult struct {
	Records   []Record `json:"records"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Rejected  int      `json:"rejected"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
}

// summarize sorts the ledger by ref and tallies terminal states.
func summarize(records []Record) *BulkResult {
	sort.Slice(records, func(i, j int) bool { return records[i].Ref < records[j].Ref })

	result := &BulkResult{Records: records, Total: len(records)}
	for _, rec := range records {
		switch rec.State {
		case StateSucceeded:
			result.Succeeded++
		case StateRejected:
			result.Rejected++
		case StateSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}
	return result
}
