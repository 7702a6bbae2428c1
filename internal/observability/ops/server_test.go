package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cctvbot/internal/metrics"
	logx "cctvbot/pkg/logx"
)

type snapshot struct {
	Total int `json:"total_count"`
}

func get(t *testing.T, url string, header ...string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func newTestServer(t *testing.T, cfg Config, opts Options) *httptest.Server {
	t.Helper()
	s := New(cfg, opts, logx.Nop())
	ts := httptest.NewServer(s.Handler(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})
	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ok":true}`, body)
}

func TestStatusIsCached(t *testing.T) {
	var calls atomic.Int64
	reg := prometheus.NewRegistry()
	rec := metrics.New(true, reg)
	ts := newTestServer(t, Config{StatusTTL: time.Minute}, Options{
		Metrics: rec,
		Status: func(ctx context.Context) (any, error) {
			return snapshot{Total: int(calls.Add(1))}, nil
		},
	})

	for range 3 {
		code, body := get(t, ts.URL+"/status")
		require.Equal(t, http.StatusOK, code)
		var got snapshot
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, 1, got.Total)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestStatusWithoutCache(t *testing.T) {
	var calls atomic.Int64
	ts := newTestServer(t, Config{}, Options{
		Status: func(ctx context.Context) (any, error) {
			calls.Add(1)
			return snapshot{}, nil
		},
	})
	get(t, ts.URL+"/status")
	get(t, ts.URL+"/status")
	assert.EqualValues(t, 2, calls.Load())
}

func TestStatusErrorIsNotCached(t *testing.T) {
	var calls atomic.Int64
	ts := newTestServer(t, Config{StatusTTL: time.Minute}, Options{
		Status: func(ctx context.Context) (any, error) {
			if calls.Add(1) == 1 {
				return snapshot{Total: 0}, errors.New("database is locked")
			}
			return snapshot{Total: 4}, nil
		},
	})

	code, body := get(t, ts.URL+"/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "database is locked")

	code, body = get(t, ts.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"total_count":4}`, body)
}

func TestTokenRequired(t *testing.T) {
	ts := newTestServer(t, Config{Token: "s3cret"}, Options{})

	code, _ := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/healthz?token=wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/healthz?token=s3cret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts.URL+"/healthz", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(true, reg)
	ts := newTestServer(t, Config{}, Options{Gatherer: reg, Metrics: rec})

	get(t, ts.URL+"/healthz")
	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `cctvbot_http_requests_total{endpoint="healthz",status="2xx"} 1`)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	off := newTestServer(t, Config{}, Options{})
	code, _ := get(t, off.URL+"/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)

	on := newTestServer(t, Config{Pprof: true, PprofPrefix: "/ops/pprof"}, Options{})
	code, body := get(t, on.URL+"/ops/pprof/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "goroutine")
}

func TestStartStopReconfigure(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Options{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	addr := waitAddr(t, s)
	code, _ := get(t, "http://"+addr+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Empty(t, s.Addr())

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	addr = waitAddr(t, s)
	code, _ = get(t, "http://"+addr+"/healthz")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRefusesInsecurePublicBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Options{}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	assert.True(t, isLoopbackAddr("127.0.0.1:9477"))
	assert.True(t, isLoopbackAddr("localhost:9477"))
	assert.True(t, isLoopbackAddr("[::1]:9477"))
	assert.False(t, isLoopbackAddr(":9477"))
	assert.False(t, isLoopbackAddr("10.0.0.5:9477"))
	assert.False(t, isLoopbackAddr("nonsense"))
}

func waitAddr(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start")
	return ""
}
