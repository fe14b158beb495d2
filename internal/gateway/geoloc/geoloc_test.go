package geoloc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ferry77-dispatch/internal/domain"
	testlog "ferry77-dispatch/internal/testutil"
)

func TestHTTPGateway_Resolve(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Calle 10 #5-21", r.URL.Query().Get("address"))
		require.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"results":[{"lat":4.6097,"lng":-74.0817}]}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "secret", time.Second)
	require.NotNil(t, gw)

	loc, err := gw.Resolve(context.Background(), "Calle 10 #5-21")
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.InDelta(t, 4.6097, loc.Lat, 1e-9)
	require.InDelta(t, -74.0817, loc.Lng, 1e-9)
}

func TestHTTPGateway_ResolveNoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", time.Second)
	loc, err := gw.Resolve(context.Background(), "nowhere")
	require.NoError(t, err)
	require.Nil(t, loc)
}

func TestHTTPGateway_ResolveStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", time.Second)
	_, err := gw.Resolve(context.Background(), "x")
	var st *StatusError
	require.ErrorAs(t, err, &st)
	require.Equal(t, http.StatusServiceUnavailable, st.Code)
}

func TestNewHTTPGateway_NoEndpointReturnsNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, NewHTTPGateway("", "key", time.Second))
}

type fakeProvider struct {
	fn func(context.Context, string) (*domain.Coordinates, error)
}

func (f *fakeProvider) Resolve(ctx context.Context, addr string) (*domain.Coordinates, error) {
	return f.fn(ctx, addr)
}

type counterStub struct{ n int64 }

func (c *counterStub) Inc()         { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 { return atomic.LoadInt64(&c.n) }

func TestRetryingProvider_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeProvider{
		fn: func(context.Context, string) (*domain.Coordinates, error) {
			switch atomic.AddInt32(&calls, 1) {
			case 1, 2:
				return nil, &StatusError{Code: http.StatusServiceUnavailable}
			default:
				return &domain.Coordinates{Lat: 1, Lng: 2}, nil
			}
		},
	}
	ctr := &counterStub{}
	g := NewRetryingProvider(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5})
	require.NotNil(t, g)

	loc, err := g.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.EqualValues(t, 2, ctr.Count())
}

func TestRetryingProvider_NoRetryOnNonRetryable(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeProvider{
		fn: func(context.Context, string) (*domain.Coordinates, error) {
			atomic.AddInt32(&calls, 1)
			return nil, &StatusError{Code: http.StatusBadRequest}
		},
	}
	ctr := &counterStub{}
	g := NewRetryingProvider(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5})

	_, err := g.Resolve(context.Background(), "x")
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.EqualValues(t, 0, ctr.Count())
}

func TestRetryingProvider_NilNextReturnsNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, NewRetryingProvider(nil, testlog.New().Logger(), nil, RetryConfig{}))
}
