// Package transport performs single HTTP exchanges against the upstream API.
// It distinguishes network failures from HTTP-status failures but applies no
// retry policy of its own; retries belong to the callers.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/metrics"
	"github.com/Checker-Finance/authgate/internal/rate"
)

// Response is a fully-read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HTTPError is returned when the upstream answered with a failure status
// (>= 400). Callers branch on Status; Body is kept for diagnostics.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.Status)
}

// Transport sends individual requests over an *http.Client with rate limiting
// and request logging.
type Transport struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
}

// New creates a Transport. rateMgr may be nil to disable rate limiting.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
	}
}

// Send performs one HTTP exchange. A network-level failure returns a wrapped
// error; a status >= 400 returns (*HTTPError); anything else is success.
func (t *Transport) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	if t.rateMgr != nil {
		if err := t.rateMgr.Wait(ctx, "upstream"); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		t.logger.Warn("transport.http_failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err))
		metrics.IncUpstreamRequest(method, "network_error")
		return nil, fmt.Errorf("send %s %s: %w", method, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncUpstreamRequest(method, "read_error")
		return nil, fmt.Errorf("read response body: %w", err)
	}
	elapsed := time.Since(start)

	metrics.IncUpstreamRequest(method, strconv.Itoa(resp.StatusCode))
	metrics.ObserveDuration(metrics.UpstreamRequestDuration, start, method)

	if resp.StatusCode >= 400 {
		t.logger.Warn("transport.http_error",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", elapsed))
		return nil, &HTTPError{Status: resp.StatusCode, Body: respBody}
	}

	t.logger.Debug("transport.http_success",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", elapsed))

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}
