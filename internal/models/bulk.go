package models

// Bulk item statuses.
const (
	BulkStatusSuccess = "success"
	BulkStatusFailed  = "failed"
)

// BulkItemResult is the outcome of one asset update inside a bulk run.
type BulkItemResult struct {
	Identifier string `json:"assetId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BulkUpdateResult accumulates per-asset outcomes in iteration order.
// Updated+Failed always equals len(Results).
type BulkUpdateResult struct {
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Results []BulkItemResult `json:"results"`
}

// NewBulkUpdateResult returns an empty ledger sized for n items.
func NewBulkUpdateResult(n int) *BulkUpdateResult {
	return &BulkUpdateResult{Results: make([]BulkItemResult, 0, n)}
}

// Record appends one outcome. A nil err counts as success.
func (r *BulkUpdateResult) Record(identifier string, err error) {
	if err != nil {
		r.Failed++
		r.Results = append(r.Results, BulkItemResult{
			Identifier: identifier,
			Status:     BulkStatusFailed,
			Error:      err.Error(),
		})
		return
	}
	r.Updated++
	r.Results = append(r.Results, BulkItemResult{
		Identifier: identifier,
		Status:     BulkStatusSuccess,
	})
}

// Total is the number of assets attempted.
func (r *BulkUpdateResult) Total() int {
	return len(r.Results)
}
