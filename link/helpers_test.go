package link

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestSession creates a Session backed by the local end of net.Pipe().
// Returns the session and the remote end playing the device.
func newTestSession(t *testing.T, opts ...Option) (*Session, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	defaults := []Option{
		WithTimeout(200 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
	}

	s, err := NewSession("pipe", PortDialer(NewConnPort(local)), append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, remote
}

// readExactly reads n bytes from conn with a generous deadline.
func readExactly(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)

	return buf
}

func lengthIs(n int) func([]byte) bool {
	return func(buf []byte) bool { return len(buf) >= n }
}
