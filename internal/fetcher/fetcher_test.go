package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(maxRetries int) *Fetcher {
	return New(NewHTTPTransport(5*time.Second), Options{
		MaxRetries: maxRetries,
		UserAgents: []string{"ua-a", "ua-b"},
	})
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), calls.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestFetchDoesNotRetryPermanentStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
			assert.ErrorIs(t, err, ErrPermanent)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	_, err := newTestFetcher(1).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, []string{"ua-a", "ua-b"}, got.Get("User-Agent"))
	assert.Equal(t, acceptHeader, got.Get("Accept"))
	assert.Equal(t, "en-US,en;q=0.5", got.Get("Accept-Language"))
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(3).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHeadersPickUserAgentFromPool(t *testing.T) {
	f := newTestFetcher(1)
	f.pick = func(int) int { return 1 }

	assert.Equal(t, "ua-b", f.Headers().Get("User-Agent"))
}

type stubTransport struct {
	responses []*Response
	calls     int
}

func (s *stubTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	resp := s.responses[s.calls]
	s.calls++
	if resp == nil {
		return nil, errors.New("connection reset")
	}
	return resp, nil
}

func TestFetchRetriesTransportErrors(t *testing.T) {
	stub := &stubTransport{responses: []*Response{nil, {StatusCode: 200, Body: []byte("page")}}}
	f := New(stub, Options{MaxRetries: 2})

	body, err := f.Fetch(context.Background(), "https://example.test/s?k=x&page=1")
	require.NoError(t, err)
	assert.Equal(t, "page", string(body))
	assert.Equal(t, 2, stub.calls)
}

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}

func TestFetchWaitsBeforeEveryAttempt(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int
		wantErr   error
	}{
		{"retried status", http.StatusServiceUnavailable, 3, ErrRetriesExhausted},
		{"permanent status", http.StatusNotFound, 1, ErrPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := make([]*Response, 3)
			for i := range responses {
				responses[i] = &Response{StatusCode: tt.status}
			}
			stub := &stubTransport{responses: responses}
			limiter := &countingLimiter{}

			_, err := New(stub, Options{MaxRetries: 3, Limiter: limiter}).Fetch(context.Background(), "https://example.test/s?k=x")

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCalls, stub.calls)
			assert.Equal(t, stub.calls, limiter.waits)
		})
	}
}
