package loadtest_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/federation-benchmark/loadtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestRun_RequestBound(t *testing.T) {
	var hits, badBodies atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["query"] != "{ __typename }" {
			badBodies.Inc()
		}
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":{"__typename":"Query"}}`))
	}))
	defer srv.Close()

	reports, err := loadtest.Run(context.Background(), loadtest.Options{
		Target:      srv.URL + "/",
		Routes:      []string{"/ok", "/broken"},
		Query:       "{ __typename }",
		Concurrency: 4,
		Requests:    20,
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "/ok", reports[0].Route)
	assert.Equal(t, int64(20), reports[0].Requests)
	assert.Equal(t, int64(0), reports[0].Errors)
	assert.Greater(t, reports[0].RequestsPerSecond, 0.0)
	assert.LessOrEqual(t, reports[0].P50, reports[0].P99)
	assert.LessOrEqual(t, reports[0].P99, reports[0].Max)

	assert.Equal(t, "/broken", reports[1].Route)
	assert.Equal(t, int64(20), reports[1].Requests)
	assert.Equal(t, int64(20), reports[1].Errors)

	assert.Equal(t, int64(40), hits.Load())
	assert.Equal(t, int64(0), badBodies.Load())
}

func TestRun_DurationBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	start := time.Now()
	reports, err := loadtest.Run(context.Background(), loadtest.Options{
		Target:      srv.URL,
		Routes:      []string{"/monolith"},
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, reports[0].Requests, int64(0))
	assert.Equal(t, int64(0), reports[0].Errors)
}

func TestRun_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  loadtest.Options
	}{
		{name: "no target", opt: loadtest.Options{Requests: 1}},
		{name: "unbounded", opt: loadtest.Options{Target: "http://127.0.0.1:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadtest.Run(context.Background(), tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{p: 50, want: 50 * time.Millisecond},
		{p: 90, want: 90 * time.Millisecond},
		{p: 99, want: 99 * time.Millisecond},
		{p: 100, want: 100 * time.Millisecond},
		{p: 0, want: time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, loadtest.Percentile(samples, tt.p), "p%v", tt.p)
	}

	assert.Equal(t, time.Duration(0), loadtest.Percentile(nil, 50))
}

func TestWriteReports(t *testing.T) {
	var buf bytes.Buffer
	err := loadtest.WriteReports(&buf, []loadtest.Report{
		{Route: "/federation", Requests: 10, RequestsPerSecond: 5, P50: time.Millisecond},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ROUTE"))
	assert.Contains(t, lines[1], "/federation")
	assert.Contains(t, lines[1], "1ms")
}
