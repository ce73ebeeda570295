package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return client
}

type testLogger struct {
	lastMsg atomic.Value
	count   int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) log(format string, args ...interface{}) {
	atomic.AddInt32(&l.count, 1)
	l.lastMsg.Store(fmt.Sprintf(format, args...))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://clinterm.local:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://clinterm.local:8080", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "clinterm-go-sdk/")
	assert.Same(t, c.Coding(), c.Coding())
	assert.Same(t, c.Evaluations(), c.Evaluations())

	for _, bad := range []string{"", "ftp://host", "not a url"} {
		_, err := NewClient(bad)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig), bad)
	}
}

func TestClient_Do_RequestHeaders(t *testing.T) {
	ids := make(chan string, 2)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("User-Agent"), "clinterm-go-sdk/")
		ids <- r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}, WithAPIKey("secret"))

	require.NoError(t, c.get(context.Background(), "/x", nil))
	require.NoError(t, c.get(context.Background(), "x", nil))
	assert.NotEqual(t, <-ids, <-ids)
}

func TestClient_Do_NoAuthorizationWithoutKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	})
	assert.NoError(t, c.get(context.Background(), "/x", nil))
}

func TestClient_Do_4xxError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"COMMON_010","message":"term is required","request_id":"req-1"}`))
	})

	err := c.post(context.Background(), "/x", map[string]string{}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "COMMON_010", apiErr.Code)
	assert.Equal(t, "term is required", apiErr.Message)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.True(t, apiErr.IsValidation())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is not retried")
}

func TestClient_Do_5xxRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"v":1}`, string(body), "body is resent on every attempt")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"v":2}`))
	}, WithRetryWait(time.Millisecond, 2*time.Millisecond))

	var out struct{ V int }
	require.NoError(t, c.post(context.Background(), "/x", map[string]int{"v": 1}, &out))
	assert.Equal(t, 2, out.V)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxRetryExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryMax(2), WithRetryWait(time.Millisecond, 2*time.Millisecond))

	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_429RetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	start := time.Now()
	require.NoError(t, c.get(context.Background(), "/x", nil))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Do_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	logger := &testLogger{}

	c, err := NewClient(server.URL, WithRetryMax(1), WithRetryWait(time.Millisecond, 2*time.Millisecond), WithLogger(logger))
	require.NoError(t, err)
	err = c.get(context.Background(), "/x", nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	assert.Positive(t, atomic.LoadInt32(&logger.count))
}

func TestClient_Do_Context(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.get(ctx, "/x", nil), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.get(ctx, "/x", nil), context.DeadlineExceeded)
}

func TestAPIError_Methods(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 404}).IsNotFound())
	assert.True(t, (&APIError{StatusCode: 400}).IsValidation())
	assert.True(t, (&APIError{StatusCode: 503}).IsUnavailable())
	assert.True(t, (&APIError{StatusCode: 503}).IsServerError())
	assert.False(t, (&APIError{StatusCode: 422}).IsServerError())

	msg := (&APIError{Code: "EVAL_002", StatusCode: 400, Message: "ground truth table is empty", RequestID: "ID"}).Error()
	assert.Equal(t, "clinterm: EVAL_002 (HTTP 400): ground truth table is empty [request_id=ID]", msg)
}
