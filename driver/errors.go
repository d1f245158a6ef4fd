package driver

import "errors"

var (
	// ErrInvalidParams is returned by Open for unusable node parameters.
	ErrInvalidParams = errors.New("driver: invalid node parameters")
	// ErrNodeClosed is returned by operations on a closed node.
	ErrNodeClosed = errors.New("driver: node closed")
	// ErrInvalidNode is returned for nil nodes and nodes opened by another driver.
	ErrInvalidNode = errors.New("driver: invalid node")
)
