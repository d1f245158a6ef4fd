package driver

import (
	"context"

	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/point"
	"github.com/arloliu/go-plclink/segment"
)

// resolve turns a point into a segment item. isBit reports whether the
// parsed address lives in a bit region.
func resolve(p point.Point, addr point.Address, isBit bool) (segment.Item, error) {
	vt, err := point.Resolve(p, isBit)
	if err != nil {
		return segment.Item{}, err
	}

	return segment.Item{
		Name:   p.Name,
		Region: addr.Region,
		Offset: addr.Offset,
		Count:  point.Count(p, vt, isBit),
		Type:   vt,
	}, nil
}

// readItems plans, fetches and dispatches items for one node. Failed
// segments and undecodable points are logged and left out of the result.
func readItems(ctx context.Context, log logger.Logger, p Params, maxCount int,
	items []segment.Item, fetch segment.Fetch,
) map[string]any {
	if len(items) == 0 {
		return map[string]any{}
	}

	plan := segment.Build(segment.Ranges(items), segment.Options{
		Step:      p.Step,
		BatchSize: p.BatchSize,
		MaxCount:  maxCount,
	})

	results := segment.Execute(ctx, plan, p.Delay, fetch)
	for i, r := range results {
		if !r.OK() {
			log.Warn("segment read failed", "segment", plan[i].String(), "error", r.Err)
		}
	}

	values, errs := segment.Dispatch(items, plan, results)
	for name, err := range errs {
		log.Debug("point skipped", "point", name, "error", err)
	}

	return values
}

// result wraps the outcome of one client read.
func result(data any, err error) segment.Result {
	if err != nil {
		return segment.Result{Err: err}
	}

	switch v := data.(type) {
	case []byte:
		return segment.Result{Bits: v}
	case []uint16:
		return segment.Result{Words: v}
	}

	return segment.Result{}
}
