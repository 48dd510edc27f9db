package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitNilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	assert.NotNil(t, p.MetricsHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestTraceExport(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{
		ServiceName: "test",
		Trace:       true,
		TraceWriter: &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestMetricsBridge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := Init(context.Background(), Config{
		ServiceName: "test",
		Metrics:     true,
		Registry:    reg,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := otel.Meter("telemetry-test").Int64Counter("bridge_counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bridge_counter")
}

func TestServeMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok_metric 1\n"))
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	addr, err := ServeMetrics(ctx, "127.0.0.1:0", handler, logger)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok_metric 1\n", string(body))

	t.Run("bad address", func(t *testing.T) {
		_, err := ServeMetrics(ctx, "not-an-address", handler, logger)
		assert.Error(t, err)
	})
}
