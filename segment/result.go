package segment

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-plclink/internal/pool"
)

// ErrNoData marks a segment whose fetch returned nothing, e.g. because the
// device did not answer in time.
var ErrNoData = errors.New("segment: no data")

// Result is the outcome of reading one segment. Bit regions fill Bits with
// one 0/1 byte per element, word regions fill Words.
type Result struct {
	Bits  []byte
	Words []uint16
	Err   error
}

// OK reports whether the result carries data.
func (r Result) OK() bool {
	return r.Err == nil && (r.Bits != nil || r.Words != nil)
}

// Len returns the number of elements in the result.
func (r Result) Len() int {
	if r.Bits != nil {
		return len(r.Bits)
	}

	return len(r.Words)
}

// Results is indexed like the plan it was produced for.
type Results []Result

// Failed returns the number of segments without data.
func (rs Results) Failed() int {
	n := 0
	for _, r := range rs {
		if !r.OK() {
			n++
		}
	}

	return n
}

// Fetch reads one segment.
type Fetch func(ctx context.Context, seg Segment) Result

// Execute fetches every segment of plan in order, pausing delay between
// segments. A failed segment does not stop the others. Once ctx is done the
// remaining segments fail with the context error.
func Execute(ctx context.Context, plan []Segment, delay time.Duration, fetch Fetch) Results {
	results := make(Results, len(plan))

	for i, seg := range plan {
		if i > 0 && delay > 0 {
			if err := pool.Sleep(ctx, delay); err != nil {
				fillErr(results[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			fillErr(results[i:], err)
			break
		}

		r := fetch(ctx, seg)
		if r.Err == nil && r.Bits == nil && r.Words == nil {
			r.Err = ErrNoData
		}
		results[i] = r
	}

	return results
}

func fillErr(results Results, err error) {
	for i := range results {
		results[i] = Result{Err: err}
	}
}
