package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/config"
	"github.com/arloliu/go-plclink/logger"
)

// influxServer accepts pings and records written line protocol.
type influxServer struct {
	mu    sync.Mutex
	lines []string
	query []string
}

func (s *influxServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.lines = append(s.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		s.query = append(s.query, r.URL.RawQuery)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *influxServer) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.lines...)
}

func newTestInflux(t *testing.T) (*Influx, *influxServer) {
	t.Helper()

	srv := &influxServer{}
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	cfg := config.Default().InfluxDB
	cfg.URL, cfg.Org, cfg.Bucket, cfg.Token = hs.URL, "plant", "telemetry", "token"

	in, err := NewInflux(context.Background(), cfg, logger.NewMockLogger().AllowAll())
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })

	return in, srv
}

func TestInflux_Point(t *testing.T) {
	in, _ := newTestInflux(t)

	p := in.Point(Sample{
		Device: "press",
		Values: map[string]any{"speed": int16(12), "running": true, "blob": []byte{1}},
		Time:   sampleTime,
	})
	require.NotNil(t, p)
	assert.Equal(t, config.DefaultMeasurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "device", p.TagList()[0].Key)
	assert.Len(t, p.FieldList(), 2, "unsupported values are dropped")

	assert.Nil(t, in.Point(Sample{Device: "press", Values: map[string]any{"x": struct{}{}}}))
}

func TestInflux_PublishFlush(t *testing.T) {
	in, srv := newTestInflux(t)

	require.NoError(t, in.Publish(context.Background(), Sample{
		Device: "press",
		Values: map[string]any{"speed": int16(12), "temp": 21.5},
		Time:   sampleTime,
	}))
	in.Flush()

	require.Eventually(t, func() bool { return len(srv.written()) > 0 }, 2*time.Second, 10*time.Millisecond)
	lines := srv.written()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "plc,device=press "), lines[0])
	assert.Contains(t, lines[0], "speed=12i")
	assert.Contains(t, lines[0], "temp=21.5")

	srv.mu.Lock()
	assert.Contains(t, srv.query[0], "bucket=telemetry")
	srv.mu.Unlock()
}

func TestInflux_PingFailure(t *testing.T) {
	hs := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(hs.Close)

	cfg := config.Default().InfluxDB
	cfg.URL, cfg.Org, cfg.Bucket = hs.URL, "o", "b"

	_, err := NewInflux(context.Background(), cfg, logger.NewMockLogger().AllowAll())
	require.ErrorIs(t, err, ErrNotConnected)
}
