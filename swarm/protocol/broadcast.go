package protocol

import "sort"

// BroadcastResult reports the outcome of a fan-out to several users. A failure for one
// recipient never prevents delivery to the others.
type BroadcastResult struct {
	Delivered []string
	Failed    map[string]error
}

func NewBroadcastResult() *BroadcastResult {
	return &BroadcastResult{Failed: make(map[string]error)}
}

// Record stores the outcome for one recipient. It is not safe for concurrent use.
func (r *BroadcastResult) Record(userID string, err error) {
	if err != nil {
		r.Failed[userID] = err
		return
	}
	r.Delivered = append(r.Delivered, userID)
}

// FailedIDs returns the recipients that could not be reached, sorted.
func (r *BroadcastResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
