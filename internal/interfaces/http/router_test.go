package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/handlers"
)

func newTestRouter(t *testing.T, maxBody int64) (http.Handler, prometheus.MetricsCollector) {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "clinterm_test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	return NewRouter(RouterConfig{
		EvaluationHandler: handlers.NewEvaluationHandler(nil, metrics, nil),
		HealthHandler:     handlers.NewHealthHandler("test", metrics),
		Logger:            logging.NewNopLogger(),
		Collector:         collector,
		Metrics:           metrics,
		Mode:              "test",
		MaxBodySize:       maxBody,
	}), collector
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, 1<<20)

	body := `{"ground_truth":"note_id,concept_id\nn1,1\n","predictions":"note_id,concept_id\nn1,1\n"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	scrape := w.Body.String()
	assert.Contains(t, scrape, `clinterm_test_http_requests_total{method="POST",path="/api/v1/evaluations",status_code="200"} 1`)
	assert.Contains(t, scrape, `clinterm_test_evaluation_score{metric="iou"} 1`)
}

func TestRouter_UnmountedHandlers(t *testing.T) {
	router, _ := newTestRouter(t, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_BodyLimit(t *testing.T) {
	router, _ := newTestRouter(t, 64)

	body := `{"ground_truth":"` + strings.Repeat("x", 200) + `"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ServeAndStop(t *testing.T) {
	router, _ := newTestRouter(t, 1<<20)
	srv := NewServer(config.ServerConfig{Port: 0, ShutdownTimeout: time.Second}, router, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "alive")

	require.NoError(t, srv.Stop(context.Background()))
	assert.NoError(t, <-done)
}
