package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	client, err := NewClient(&Config{
		BaseURL:                 url,
		Timeout:                 2 * time.Second,
		MaxRetries:              2,
		RetryDelay:              10 * time.Millisecond,
		MaxConns:                10,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreMetrics_RecordSuccess(t *testing.T) {
	metrics := NewStoreMetrics()

	metrics.RecordSuccess(100)
	metrics.RecordSuccess(200)

	assert.Equal(t, int64(2), metrics.TotalRequests.Load())
	assert.Equal(t, int64(2), metrics.SuccessfulReqs.Load())
	assert.Equal(t, int64(0), metrics.FailedReqs.Load())
	assert.Equal(t, float64(1.0), metrics.SuccessRate())
	assert.Equal(t, int64(150), metrics.AvgLatencyMs())
}

func TestStoreMetrics_RecordFailure(t *testing.T) {
	metrics := NewStoreMetrics()

	metrics.RecordSuccess(100)
	metrics.RecordFailure()
	metrics.RecordFailure()

	assert.Equal(t, int64(3), metrics.TotalRequests.Load())
	assert.Equal(t, int64(2), metrics.FailedReqs.Load())
	assert.InDelta(t, 0.333, metrics.SuccessRate(), 0.01)
	assert.Equal(t, int32(2), metrics.ConsecutiveFails.Load())
	assert.Equal(t, int64(100), metrics.AvgLatencyMs())
}

func TestStoreMetrics_P95Latency(t *testing.T) {
	metrics := NewStoreMetrics()

	for i := int64(0); i < 100; i++ {
		metrics.RecordSuccess(i * 10)
	}

	p95 := metrics.P95LatencyMs()
	assert.GreaterOrEqual(t, p95, int64(900))
	assert.LessOrEqual(t, p95, int64(990))
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		client, err := NewClient(nil)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "config is required")
	})

	t.Run("missing url returns error", func(t *testing.T) {
		client, err := NewClient(&Config{})
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestClient_Upload(t *testing.T) {
	var gotType, gotName string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/proofs", r.URL.Path)

		file, header, err := r.FormFile("proof")
		require.NoError(t, err)
		defer file.Close()
		gotBody, _ = io.ReadAll(file)
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"path":"/uploads/proofs/proof-1-abcd1234.png"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	stored, err := client.Upload(context.Background(), "receipt.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/proofs/proof-1-abcd1234.png", stored.Path)
	assert.Equal(t, "receipt.png", gotName)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, []byte("png-bytes"), gotBody)
	assert.Equal(t, int64(1), client.Stats().SuccessfulReqs)
}

func TestClient_Upload_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported type"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Upload(context.Background(), "x.png", "image/png", []byte("x"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestClient_Delete(t *testing.T) {
	t.Run("deletes by file name", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		require.NoError(t, client.Delete(context.Background(), "/uploads/proofs/a.png"))
		assert.Equal(t, "/api/v1/proofs/a.png", gotPath)
	})

	t.Run("missing proof counts as deleted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		assert.NoError(t, client.Delete(context.Background(), "/uploads/proofs/gone.png"))
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL)
		require.NoError(t, client.Delete(context.Background(), "/uploads/proofs/a.png"))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client, err := NewClient(&Config{
			BaseURL:                 srv.URL,
			MaxRetries:              1,
			RetryDelay:              time.Millisecond,
			CircuitBreakerThreshold: 10,
		})
		require.NoError(t, err)

		err = client.Delete(context.Background(), "/uploads/proofs/a.png")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 2 attempts")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("invalid path", func(t *testing.T) {
		client := newTestClient(t, "http://127.0.0.1:1")
		assert.Error(t, client.Delete(context.Background(), ""))
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	t.Run("opens after threshold failures", func(t *testing.T) {
		err := client.Delete(context.Background(), "/uploads/proofs/a.png")
		assert.Error(t, err)
		assert.Equal(t, StateOpen, client.GetState())
		assert.Greater(t, client.openUntil.Load(), time.Now().Unix())
	})

	t.Run("short circuits while open", func(t *testing.T) {
		before := calls.Load()
		err := client.Delete(context.Background(), "/uploads/proofs/a.png")
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, before, calls.Load())
	})

	t.Run("half opens after timeout", func(t *testing.T) {
		client.openUntil.Store(time.Now().Add(-1 * time.Second).Unix())
		assert.True(t, client.Available())
		assert.Equal(t, StateHalfOpen, client.GetState())
	})
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	assert.NoError(t, client.Health(context.Background()))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    BreakerState
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateHalfOpen, "HALF_OPEN"},
		{StateOpen, "OPEN"},
		{BreakerState(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, stateString(tt.state))
		})
	}
}
