// Package driver opens controller nodes and reads or writes their points
// through batched segment plans.
//
// Key Features:
//   - Shared Channels: nodes on the same endpoint share one link.Session, so
//     multi-drop serial lines and gateways see one transaction at a time.
//   - Reference Counting: the session is created with the first node and
//     disposed when the last node on the endpoint is closed.
//   - Segment Batching: point reads are merged into as few requests as the
//     node's Step, BatchSize and the protocol limits allow.
//   - Partial Results: a failed segment is logged and only its points are
//     missing from the result.
//
// Usage Example:
//
//	drv, _ := driver.NewFxLinkDriver(driver.WithLogger(log))
//	node, _ := drv.Open(driver.Params{Endpoint: "/dev/ttyUSB0", Station: 1})
//	defer drv.Close(node)
//
//	values, _ := drv.Read(ctx, node, []point.Point{
//	    {Name: "speed", Address: "D100", Type: "short"},
//	    {Name: "running", Address: "M10"},
//	})
package driver
