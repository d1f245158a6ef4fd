package link

import "errors"

var (
	// ErrTimeout reports that the device did not answer within the response
	// timeout. Protocol clients translate it into a nil result.
	ErrTimeout = errors.New("link: response timeout")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("link: session closed")
	// ErrEmptyFrame is returned when RoundTrip is called without request bytes.
	ErrEmptyFrame = errors.New("link: empty request frame")
	// ErrNoDialer is returned by NewSession when no dialer was given.
	ErrNoDialer = errors.New("link: dialer is nil")
)
