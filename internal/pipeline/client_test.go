package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/auth"
	"github.com/Checker-Finance/authgate/internal/credentials"
	"github.com/Checker-Finance/authgate/internal/transport"
)

// fakeSender scripts transport behavior per call.
type fakeSender struct {
	mu    sync.Mutex
	calls []http.Header
	fn    func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error)
}

func (f *fakeSender) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*transport.Response, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, header.Clone())
	f.mu.Unlock()
	return f.fn(call, method, url, header, body)
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeRefresh is a scripted RefreshRunner.
type fakeRefresh struct {
	calls atomic.Int32
	token string
	err   error
}

func (f *fakeRefresh) Refresh(ctx context.Context) (string, error) {
	f.calls.Add(1)
	return f.token, f.err
}

func storeWith(t *testing.T, access, refresh string) *credentials.MemoryStore {
	t.Helper()
	s := credentials.NewMemoryStore()
	require.NoError(t, s.SetPair(context.Background(), credentials.Pair{Access: access, Refresh: refresh}))
	return s
}

func ok(body string) *transport.Response {
	return &transport.Response{Status: http.StatusOK, Body: []byte(body)}
}

func unauthorized() error {
	return &transport.HTTPError{Status: http.StatusUnauthorized, Body: []byte(`{"error":"token expired"}`)}
}

// ─── Do: bearer attachment ───────────────────────────────────────────────────

func TestClient_Do_AttachesBearer(t *testing.T) {
	sender := &fakeSender{fn: func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error) {
		assert.Equal(t, "Bearer tok-1", header.Get("Authorization"))
		assert.NotEmpty(t, header.Get("X-Request-ID"))
		assert.Equal(t, "https://api.test/items", url)
		return ok(`{}`), nil
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok-1", "ref-1"), sender, &fakeRefresh{})

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestClient_Do_NoTokenNoAuthHeader(t *testing.T) {
	sender := &fakeSender{fn: func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error) {
		assert.Empty(t, header.Get("Authorization"), "no stored token means no auth header")
		return ok(`{}`), nil
	}}
	c := NewClient(zap.NewNop(), "https://api.test", credentials.NewMemoryStore(), sender, &fakeRefresh{})

	_, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.NoError(t, err)
}

// ─── Do: non-auth failures bypass refresh ────────────────────────────────────

func TestClient_Do_ServerErrorBypassesRefresh(t *testing.T) {
	refresh := &fakeRefresh{token: "unused"}
	sender := &fakeSender{fn: func(int, string, string, http.Header, []byte) (*transport.Response, error) {
		return nil, &transport.HTTPError{Status: http.StatusInternalServerError, Body: []byte("boom")}
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok", "ref"), sender, refresh)

	_, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.Error(t, err)

	var httpErr *transport.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Equal(t, int32(0), refresh.calls.Load(), "500 must never enter the refresh path")
	assert.Equal(t, 1, sender.callCount())
}

func TestClient_Do_NetworkErrorBypassesRefresh(t *testing.T) {
	refresh := &fakeRefresh{token: "unused"}
	sender := &fakeSender{fn: func(int, string, string, http.Header, []byte) (*transport.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok", "ref"), sender, refresh)

	_, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.Error(t, err)
	assert.Equal(t, int32(0), refresh.calls.Load())
}

// ─── Do: 401 triggers one refresh and one replay ─────────────────────────────

func TestClient_Do_RefreshAndReplayOnUnauthorized(t *testing.T) {
	refresh := &fakeRefresh{token: "tok-new"}
	sender := &fakeSender{fn: func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error) {
		if call == 0 {
			return nil, unauthorized()
		}
		return ok(`{"data":"fresh"}`), nil
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok-old", "ref"), sender, refresh)

	resp, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(1), refresh.calls.Load())
	require.Equal(t, 2, sender.callCount())
	assert.Equal(t, "Bearer tok-old", sender.calls[0].Get("Authorization"))
	assert.Equal(t, "Bearer tok-new", sender.calls[1].Get("Authorization"), "replay must use the new token")
}

func TestClient_Do_SecondUnauthorizedIsTerminal(t *testing.T) {
	refresh := &fakeRefresh{token: "tok-new"}
	sender := &fakeSender{fn: func(int, string, string, http.Header, []byte) (*transport.Response, error) {
		return nil, unauthorized()
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok-old", "ref"), sender, refresh)

	_, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.Error(t, err)

	var httpErr *transport.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.Equal(t, int32(1), refresh.calls.Load(), "never more than one refresh per failure episode")
	assert.Equal(t, 2, sender.callCount(), "exactly one replay")
}

func TestClient_Do_RefreshFailurePropagates(t *testing.T) {
	refresh := &fakeRefresh{err: errors.New("refresh endpoint down")}
	sender := &fakeSender{fn: func(int, string, string, http.Header, []byte) (*transport.Response, error) {
		return nil, unauthorized()
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok-old", "ref"), sender, refresh)

	_, err := c.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh endpoint down")
	assert.Equal(t, 1, sender.callCount(), "no replay after a failed refresh")
}

// ─── JSON helpers ────────────────────────────────────────────────────────────

func TestClient_GetJSON(t *testing.T) {
	sender := &fakeSender{fn: func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error) {
		assert.Equal(t, http.MethodGet, method)
		return ok(`{"name":"widget"}`), nil
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok", "ref"), sender, &fakeRefresh{})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/items/1", &out))
	assert.Equal(t, "widget", out.Name)
}

func TestClient_PostJSON(t *testing.T) {
	sender := &fakeSender{fn: func(call int, method, url string, header http.Header, body []byte) (*transport.Response, error) {
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "application/json", header.Get("Content-Type"))
		assert.JSONEq(t, `{"name":"widget"}`, string(body))
		return ok(`{"id":7}`), nil
	}}
	c := NewClient(zap.NewNop(), "https://api.test", storeWith(t, "tok", "ref"), sender, &fakeRefresh{})

	var out struct {
		ID int `json:"id"`
	}
	in := map[string]string{"name": "widget"}
	require.NoError(t, c.PostJSON(context.Background(), "/items", in, &out))
	assert.Equal(t, 7, out.ID)
}

// ─── Full-stack scenario: concurrent 401s share one refresh ──────────────────

// mockRoundTripper backs a real transport.Transport with a scripted upstream.
type mockRoundTripper struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

// countingRefresher implements auth.TokenRefresher and blocks in wait (if set)
// before returning, so tests can hold the refresh open until all concurrent
// callers have reached the coordinator.
type countingRefresher struct {
	calls atomic.Int32
	wait  func()
	pair  credentials.Pair
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error) {
	c.calls.Add(1)
	if c.wait != nil {
		c.wait()
	}
	return c.pair, c.err
}

// gatedRefresh wraps the coordinator and counts down arrivals, so the
// in-flight refresh can be held open until every caller has arrived.
type gatedRefresh struct {
	inner   RefreshRunner
	arrived *sync.WaitGroup
}

func (g *gatedRefresh) Refresh(ctx context.Context) (string, error) {
	g.arrived.Done()
	return g.inner.Refresh(ctx)
}

func TestClient_ConcurrentUnauthorized_OneRefreshReplaysAll(t *testing.T) {
	const concurrent = 3

	ctx := context.Background()
	store := storeWith(t, "old-A", "old-R")

	// Upstream: 401 for anything but the new token; 200 once the new token
	// arrives. Replays per path are counted.
	var replayMu sync.Mutex
	replays := map[string]int{}
	rt := &mockRoundTripper{fn: func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer new-A" {
			replayMu.Lock()
			replays[req.URL.Path]++
			replayMu.Unlock()
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
				Header:     http.Header{},
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"error":"expired"}`)),
			Header:     http.Header{},
		}, nil
	}}

	// The refresh stays in flight until all callers have hit the coordinator.
	var arrived sync.WaitGroup
	arrived.Add(concurrent)
	refresher := &countingRefresher{
		wait: arrived.Wait,
		pair: credentials.Pair{Access: "new-A", Refresh: "new-R"},
	}

	coord := auth.NewCoordinator(zap.NewNop(), store, refresher, nil, nil)
	tr := transport.New(zap.NewNop(), nil, &http.Client{Transport: rt})
	c := NewClient(zap.NewNop(), "https://api.test", store, tr, &gatedRefresh{inner: coord, arrived: &arrived})

	paths := []string{"/a", "/b", "/c"}
	var wg sync.WaitGroup
	errs := make([]error, concurrent)
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			_, errs[i] = c.Do(ctx, NewRequest(http.MethodGet, path))
		}(i, path)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %s", paths[i])
	}

	assert.Equal(t, int32(1), refresher.calls.Load(), "refresh endpoint saw exactly one call")
	for _, path := range paths {
		assert.Equal(t, 1, replays[path], "each request re-sent exactly once with the new token")
	}

	access, _ := store.AccessToken(ctx)
	refresh, _ := store.RefreshToken(ctx)
	assert.Equal(t, "new-A", access)
	assert.Equal(t, "new-R", refresh)
}

func TestClient_ConcurrentUnauthorized_RefreshFailureRejectsAll(t *testing.T) {
	const concurrent = 3

	ctx := context.Background()
	store := storeWith(t, "old-A", "old-R")

	rt := &mockRoundTripper{fn: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"error":"expired"}`)),
			Header:     http.Header{},
		}, nil
	}}

	var arrived sync.WaitGroup
	arrived.Add(concurrent)
	refresher := &countingRefresher{
		wait: arrived.Wait,
		err:  errors.New("refresh rejected"),
	}

	var authLost atomic.Int32
	coord := auth.NewCoordinator(zap.NewNop(), store, refresher, nil, func() { authLost.Add(1) })
	tr := transport.New(zap.NewNop(), nil, &http.Client{Transport: rt})
	c := NewClient(zap.NewNop(), "https://api.test", store, tr, &gatedRefresh{inner: coord, arrived: &arrived})

	var wg sync.WaitGroup
	errs := make([]error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(ctx, NewRequest(http.MethodGet, "/x"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refresh rejected")
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(1), authLost.Load())

	access, _ := store.AccessToken(ctx)
	assert.Empty(t, access, "credentials cleared after failed refresh")
}
