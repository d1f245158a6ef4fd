package link

import "sync/atomic"

// Metrics contains atomic counters for one session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
//
// The protocol clients built on top of a session report decoding problems
// through ChecksumErrCount and ProtocolErrCount.
type Metrics struct {
	// FrameSendCount indicates the number of request frames written.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of reply frames collected.
	FrameRecvCount atomic.Uint64
	// ByteSendCount indicates the number of bytes written.
	ByteSendCount atomic.Uint64
	// ByteRecvCount indicates the number of bytes read.
	ByteRecvCount atomic.Uint64
	// TimeoutCount indicates the number of round trips without a complete reply.
	TimeoutCount atomic.Uint64
	// IOErrCount indicates the number of port read/write failures.
	IOErrCount atomic.Uint64
	// OpenCount indicates how many times the port was (re)opened.
	OpenCount atomic.Uint64

	// ChecksumErrCount indicates replies whose checksum or CRC did not match.
	ChecksumErrCount atomic.Uint64
	// ProtocolErrCount indicates NAK or exception replies.
	ProtocolErrCount atomic.Uint64
}

func (m *Metrics) incFrameSend(n int) {
	m.FrameSendCount.Add(1)
	m.ByteSendCount.Add(uint64(n))
}

func (m *Metrics) incFrameRecv(n int) {
	m.FrameRecvCount.Add(1)
	m.ByteRecvCount.Add(uint64(n))
}

func (m *Metrics) incTimeout() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incIOErr() {
	m.IOErrCount.Add(1)
}

func (m *Metrics) incOpen() {
	m.OpenCount.Add(1)
}
