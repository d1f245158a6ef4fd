package segment

import (
	"fmt"

	"github.com/arloliu/go-plclink/internal/util"
	"github.com/arloliu/go-plclink/point"
)

// Item is a resolved point: its name, its footprint and how to decode it.
type Item struct {
	Name   string
	Region string
	Offset int
	Count  int
	Type   point.ValueType
}

// Range returns the footprint of the item.
func (it Item) Range() Range {
	return Range{Region: it.Region, Offset: it.Offset, Count: it.Count}
}

// Ranges returns the footprints of items.
func Ranges(items []Item) []Range {
	out := make([]Range, len(items))
	for i, it := range items {
		out[i] = it.Range()
	}

	return out
}

// Slice returns a copy of the elements of the item inside seg's result.
// ok is false when the segment failed or the result is too short.
func Slice(it Item, seg Segment, r Result) (Result, bool) {
	if !r.OK() {
		return Result{}, false
	}

	start := it.Offset - seg.Offset
	end := start + it.Count
	if start < 0 || end > r.Len() {
		return Result{}, false
	}

	if r.Bits != nil {
		return Result{Bits: util.CloneSlice(r.Bits[start:end], 0)}, true
	}

	return Result{Words: util.CloneSlice(r.Words[start:end], 0)}, true
}

// Decode converts the elements of one item into its Go value. Bit results
// always decode to bool.
func Decode(t point.ValueType, r Result) (any, error) {
	if r.Bits != nil {
		return point.FromBits(r.Bits)
	}

	return point.FromRegisters(t, r.Words)
}

// Dispatch maps results back onto items. Items whose segment is missing or
// failed are absent from values; errs holds the reason per item name.
func Dispatch(items []Item, plan []Segment, results Results) (values map[string]any, errs map[string]error) {
	values = make(map[string]any, len(items))
	errs = make(map[string]error)

	for _, it := range items {
		idx := Find(plan, it.Region, it.Offset, it.Count)
		if idx < 0 || idx >= len(results) {
			errs[it.Name] = fmt.Errorf("%w: %s%d not covered by the plan", ErrNoData, it.Region, it.Offset)
			continue
		}

		r := results[idx]
		if r.Err != nil {
			errs[it.Name] = r.Err
			continue
		}

		part, ok := Slice(it, plan[idx], r)
		if !ok {
			errs[it.Name] = fmt.Errorf("%w: segment %s returned %d elements", ErrNoData, plan[idx], r.Len())
			continue
		}

		v, err := Decode(it.Type, part)
		if err != nil {
			errs[it.Name] = err
			continue
		}
		values[it.Name] = v
	}

	return values, errs
}
