package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrCircuitOpen = errors.New("proof store circuit open")
)

// StatusError is returned when the proof store answers with an unexpected
// status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

type StoreMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastErrorTime    atomic.Int64
	LastSuccessTime  atomic.Int64

	mu             sync.RWMutex
	latencyHistory []int64 // Last N latencies for percentile calculation
	maxHistorySize int
}

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		latencyHistory: make([]int64, 0, 100),
		maxHistorySize: 100,
	}
}

func (m *StoreMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())

	m.mu.Lock()
	if len(m.latencyHistory) >= m.maxHistorySize {
		m.latencyHistory = m.latencyHistory[1:]
	}
	m.latencyHistory = append(m.latencyHistory, latencyMs)
	m.mu.Unlock()
}

func (m *StoreMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *StoreMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *StoreMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *StoreMetrics) P95LatencyMs() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencyHistory) == 0 {
		return 0
	}

	sorted := make([]int64, len(m.latencyHistory))
	copy(sorted, m.latencyHistory)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p95Index := int(float64(len(sorted)) * 0.95)
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}
	return sorted[p95Index]
}

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

type Config struct {
	BaseURL                 string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	ReadBufferSize          int
	WriteBufferSize         int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Client talks to the proof storage service. Consecutive failures open a
// circuit for CircuitBreakerTimeout, after which one probe is let through.
type Client struct {
	config    *Config
	http      *fasthttp.Client
	metrics   *StoreMetrics
	state     atomic.Int32
	openUntil atomic.Int64
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.CircuitBreakerThreshold == 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout == 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}

	c := &Client{
		config: config,
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
		},
		metrics: NewStoreMetrics(),
	}
	c.state.Store(int32(StateClosed))

	logger.Info("Proof store client initialized", "url", config.BaseURL, "timeout", config.Timeout)

	return c, nil
}

func (c *Client) GetState() BreakerState {
	return BreakerState(c.state.Load())
}

func (c *Client) SetState(state BreakerState) {
	c.state.Store(int32(state))
}

func (c *Client) Available() bool {
	if c.GetState() != StateOpen {
		return true
	}
	if time.Now().Unix() > c.openUntil.Load() {
		c.SetState(StateHalfOpen)
		return true
	}
	return false
}

// Upload stores one proof image. Uploads are not retried since every call
// creates a new file on the store.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (*model.StoredProof, error) {
	body, boundary, err := proofForm(filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	code, resp, err := c.call(ctx, fasthttp.MethodPost, "/api/v1/proofs", "multipart/form-data; boundary="+boundary, body)
	if err != nil {
		return nil, err
	}
	if code != fasthttp.StatusCreated && code != fasthttp.StatusOK {
		return nil, &StatusError{Code: code, Body: string(resp)}
	}

	var stored model.StoredProof
	if err := json.Unmarshal(resp, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if stored.Path == "" {
		return nil, errors.New("proof store returned an empty path")
	}

	logger.Debug("Proof uploaded", "path", stored.Path, "size", len(data))

	return &stored, nil
}

// Delete removes the proof stored at p. A proof the store no longer knows
// counts as deleted.
func (c *Client) Delete(ctx context.Context, p string) error {
	name := path.Base(strings.TrimSpace(p))
	if name == "" || name == "." || name == "/" {
		return fmt.Errorf("invalid proof path %q", p)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		code, resp, err := c.call(ctx, fasthttp.MethodDelete, "/api/v1/proofs/"+name, "", nil)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return err
			}
			logger.Warn("Proof delete failed, retrying", "error", err, "path", p, "attempt", attempt+1)
			lastErr = err
			continue
		}

		switch {
		case code == fasthttp.StatusOK || code == fasthttp.StatusNoContent || code == fasthttp.StatusNotFound:
			return nil
		case code >= 500:
			lastErr = &StatusError{Code: code, Body: string(resp)}
			continue
		default:
			return &StatusError{Code: code, Body: string(resp)}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) Health(ctx context.Context) error {
	code, resp, err := c.call(ctx, fasthttp.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	if code != fasthttp.StatusOK {
		return &StatusError{Code: code, Body: string(resp)}
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp, &health); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("proof store reports %q", health.Status)
	}
	return nil
}

// call performs one request through the circuit breaker. Transport errors and
// 5xx answers count as failures.
func (c *Client) call(ctx context.Context, method, uri, contentType string, body []byte) (int, []byte, error) {
	if !c.Available() {
		return 0, nil, ErrCircuitOpen
	}

	start := time.Now()
	code, resp, err := c.doRequest(ctx, method, uri, contentType, body)
	latency := time.Since(start).Milliseconds()

	if err != nil || code >= 500 {
		c.metrics.RecordFailure()
		c.checkCircuitBreaker()
		return code, resp, err
	}

	c.metrics.RecordSuccess(latency)
	if c.GetState() == StateHalfOpen {
		c.SetState(StateClosed)
		logger.Info("Proof store circuit closed")
	}
	return code, resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, uri, contentType string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(c.config.BaseURL, "/") + uri)
	req.Header.SetMethod(method)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return resp.StatusCode(), result, nil
}

func (c *Client) checkCircuitBreaker() {
	consecutiveFails := c.metrics.ConsecutiveFails.Load()
	if c.GetState() == StateHalfOpen || consecutiveFails >= int32(c.config.CircuitBreakerThreshold) {
		c.SetState(StateOpen)
		c.openUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())

		logger.Warn("Circuit breaker opened", "consecutive_fails", consecutiveFails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func proofForm(filename, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="proof"; filename=%q`, filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.Boundary(), nil
}

func (c *Client) Stats() Stats {
	return Stats{
		URL:              c.config.BaseURL,
		State:            stateString(c.GetState()),
		TotalRequests:    c.metrics.TotalRequests.Load(),
		SuccessfulReqs:   c.metrics.SuccessfulReqs.Load(),
		FailedReqs:       c.metrics.FailedReqs.Load(),
		SuccessRate:      c.metrics.SuccessRate(),
		AvgLatencyMs:     c.metrics.AvgLatencyMs(),
		P95LatencyMs:     c.metrics.P95LatencyMs(),
		LastLatencyMs:    c.metrics.LastLatencyMs.Load(),
		ConsecutiveFails: c.metrics.ConsecutiveFails.Load(),
	}
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	logger.Info("Proof store client closed")
	return nil
}

type Stats struct {
	URL              string
	State            string
	TotalRequests    int64
	SuccessfulReqs   int64
	FailedReqs       int64
	SuccessRate      float64
	AvgLatencyMs     int64
	P95LatencyMs     int64
	LastLatencyMs    int64
	ConsecutiveFails int32
}

func stateString(state BreakerState) string {
	switch state {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}
