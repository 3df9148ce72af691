package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/payment-scanner/internal/errors"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of an explorer response is read
const maxResponseBytes = 8 << 20

// ProviderHealth represents the health status of an explorer endpoint
type ProviderHealth struct {
	Name             string        `json:"name"`
	BaseURL          string        `json:"baseUrl"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	LastError        string        `json:"lastError,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
}

// explorerHTTP performs rate-limited GETs against one explorer and keeps
// request statistics
type explorerHTTP struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string

	mu               sync.RWMutex
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	lastError        string
	consecutiveFails int
}

func newExplorerHTTP(name, baseURL string, client *http.Client, rps float64) *explorerHTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if rps <= 0 {
		rps = 3
	}
	return &explorerHTTP{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		headers: map[string]string{},
	}
}

// get fetches url and returns the body of a 2xx response. Every failure is a
// transport error.
func (e *explorerHTTP) get(ctx context.Context, url string) ([]byte, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, e.fail(apperrors.NewTransportError(e.name, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, e.fail(apperrors.NewTransportError(e.name, err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.fail(apperrors.NewTransportError(e.name, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, e.fail(apperrors.NewTransportError(e.name, fmt.Errorf("read body: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, e.fail(apperrors.NewTransportError(e.name,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))))
	}

	e.recordSuccess(time.Since(start))
	return body, nil
}

func (e *explorerHTTP) recordSuccess(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.successfulReqs++
	e.totalLatency += latency
	e.lastSuccess = time.Now()
	e.consecutiveFails = 0
}

// fail records err against the endpoint and returns it unchanged
func (e *explorerHTTP) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.failedReqs++
	e.lastFailure = time.Now()
	e.lastError = err.Error()
	e.consecutiveFails++
	return err
}

func (e *explorerHTTP) health() *ProviderHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var successRate float64
	if e.totalRequests > 0 {
		successRate = float64(e.successfulReqs) / float64(e.totalRequests)
	}
	var avgLatency time.Duration
	if e.successfulReqs > 0 {
		avgLatency = e.totalLatency / time.Duration(e.successfulReqs)
	}

	return &ProviderHealth{
		Name:             e.name,
		BaseURL:          e.baseURL,
		TotalRequests:    e.totalRequests,
		SuccessfulReqs:   e.successfulReqs,
		FailedReqs:       e.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      e.lastSuccess,
		LastFailure:      e.lastFailure,
		LastError:        e.lastError,
		ConsecutiveFails: e.consecutiveFails,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
