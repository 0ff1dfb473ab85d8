package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockTransport is an http.RoundTripper that delegates to a handler function.
type mockTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

func newTestTransport(fn func(*http.Request) (*http.Response, error)) *Transport {
	return New(zap.NewNop(), nil, &http.Client{Transport: &mockTransport{fn: fn}})
}

func httpResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestTransport_Send_Success(t *testing.T) {
	tr := newTestTransport(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "token-abc", req.Header.Get("X-Test"))
		return httpResponse(http.StatusOK, `{"ok":true}`), nil
	})

	header := http.Header{}
	header.Set("X-Test", "token-abc")

	resp, err := tr.Send(context.Background(), http.MethodGet, "https://api.test/things", header, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestTransport_Send_HTTPErrorCarriesStatusAndBody(t *testing.T) {
	tr := newTestTransport(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusUnauthorized, `{"error":"expired"}`), nil
	})

	_, err := tr.Send(context.Background(), http.MethodGet, "https://api.test/things", nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.JSONEq(t, `{"error":"expired"}`, string(httpErr.Body))
}

func TestTransport_Send_NetworkErrorIsNotHTTPError(t *testing.T) {
	tr := newTestTransport(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	_, err := tr.Send(context.Background(), http.MethodGet, "https://api.test/things", nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr), "network failure must not be an HTTPError")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTransport_Send_BodyIsForwarded(t *testing.T) {
	var captured []byte
	tr := newTestTransport(func(req *http.Request) (*http.Response, error) {
		captured, _ = io.ReadAll(req.Body)
		return httpResponse(http.StatusCreated, `{}`), nil
	})

	resp, err := tr.Send(context.Background(), http.MethodPost, "https://api.test/things", nil, []byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"name":"x"}`, string(captured))
}

func TestTransport_Send_3xxIsSuccess(t *testing.T) {
	tr := newTestTransport(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusNotModified, ""), nil
	})

	resp, err := tr.Send(context.Background(), http.MethodGet, "https://api.test/things", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.Status)
}
