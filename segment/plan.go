// Package segment coalesces point reads into as few wire transactions as
// possible and maps the combined responses back onto the points.
//
// Build turns the (region, offset, count) footprint of every point into an
// ordered plan of segments. Execute runs one fetch per segment and returns a
// Results slice indexed like the plan. Dispatch zips plan and results and
// decodes each point from the segment that covers it.
package segment

import (
	"cmp"
	"fmt"
	"slices"
)

// DefaultStep merges only adjacent elements.
const DefaultStep = 1

// Range is the footprint of one point.
type Range struct {
	Region string
	Offset int
	Count  int
}

// Segment is one contiguous read. Plans are never modified after Build.
type Segment struct {
	Region string
	Offset int
	Count  int
}

// End returns the offset one past the last element.
func (s Segment) End() int { return s.Offset + s.Count }

// Contains reports whether the segment covers count elements at offset.
func (s Segment) Contains(region string, offset, count int) bool {
	return s.Region == region && offset >= s.Offset && offset+count <= s.End()
}

func (s Segment) String() string {
	return fmt.Sprintf("%s%d+%d", s.Region, s.Offset, s.Count)
}

// Options tune the merge.
type Options struct {
	// Step is the largest distance between the last element of a segment
	// and the next point that still merges. Values below 1 mean DefaultStep.
	Step int
	// BatchSize caps the number of points one segment absorbs. Zero or
	// negative means unlimited.
	BatchSize int
	// MaxCount caps the element count of a merged segment, usually the
	// protocol's per-request limit. Zero means unlimited. A single point
	// larger than MaxCount still gets its own segment.
	MaxCount int
}

// Build returns the minimal ordered plan covering ranges.
//
// Ranges are sorted by region, offset and descending count, then swept left
// to right. A range joins the current segment when it lies within Step of
// the segment's last element and the segment has absorbed fewer than
// BatchSize ranges; otherwise it opens a new segment.
func Build(ranges []Range, opts Options) []Segment {
	if len(ranges) == 0 {
		return nil
	}

	step := opts.Step
	if step < 1 {
		step = DefaultStep
	}
	batch := max(opts.BatchSize, 0)

	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b Range) int {
		return cmp.Or(
			cmp.Compare(a.Region, b.Region),
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(b.Count, a.Count),
		)
	})

	plan := make([]Segment, 0, len(sorted))
	cur := Segment{Region: sorted[0].Region, Offset: sorted[0].Offset, Count: max(sorted[0].Count, 1)}
	absorbed := 1

	for _, r := range sorted[1:] {
		count := max(r.Count, 1)
		merged := max(cur.Count, r.Offset+count-cur.Offset)
		near := r.Region == cur.Region && r.Offset-(cur.End()-1) <= step
		fits := opts.MaxCount <= 0 || merged <= opts.MaxCount
		if near && fits && (batch == 0 || absorbed < batch) {
			cur.Count = merged
			absorbed++

			continue
		}

		plan = append(plan, cur)
		cur = Segment{Region: r.Region, Offset: r.Offset, Count: count}
		absorbed = 1
	}

	return append(plan, cur)
}

// Find returns the index of the first segment covering count elements of
// region at offset, or -1.
func Find(plan []Segment, region string, offset, count int) int {
	for i, s := range plan {
		if s.Contains(region, offset, count) {
			return i
		}
	}

	return -1
}
