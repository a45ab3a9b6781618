// Package batch describes the outcome of one upsert batch of chunk records.
package batch

import "time"

// ItemStatus is the processing outcome of a single upload batch.
type ItemStatus string

// Batch status values.
const (
	StatusOK       ItemStatus = "ok"
	StatusError    ItemStatus = "error"
	StatusCanceled ItemStatus = "canceled" // never sent: the run was canceled first
)

// Result is the outcome of upserting one batch of records.
type Result struct {
	index    int
	size     int
	status   ItemStatus
	err      error
	duration time.Duration
}

// NewOK creates a successful batch result.
func NewOK(index, size int, took time.Duration) Result {
	return Result{index: index, size: size, status: StatusOK, duration: took}
}

// NewError creates a failed batch result.
func NewError(index, size int, err error, took time.Duration) Result {
	return Result{index: index, size: size, status: StatusError, err: err, duration: took}
}

// NewCanceled records a batch that was skipped because its context was done.
func NewCanceled(index, size int, err error) Result {
	return Result{index: index, size: size, status: StatusCanceled, err: err}
}

// Index returns the 0-based batch position.
func (r Result) Index() int { return r.index }

// Size returns the number of records in the batch.
func (r Result) Size() int { return r.size }

func (r Result) Status() ItemStatus { return r.status }

func (r Result) Err() error { return r.err }

// Duration is how long the upsert took; zero for canceled batches.
func (r Result) Duration() time.Duration { return r.duration }

// OK reports whether the batch was upserted.
func (r Result) OK() bool { return r.status == StatusOK }

// Tally counts uploaded records and failed batches over results.
func Tally(results []Result) (uploaded, failedBatches int) {
	for _, r := range results {
		if r.OK() {
			uploaded += r.size
		} else {
			failedBatches++
		}
	}
	return uploaded, failedBatches
}
