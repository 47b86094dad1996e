package caresync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesOnceAfterRefresh(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at-new"})
		case "/auth/me":
			if calls.Add(1) == 1 {
				require.Equal(t, "Bearer at-expired", r.Header.Get("Authorization"))
				http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
				return
			}
			require.Equal(t, "Bearer at-new", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"u1","username":"alex"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	c.creds.set(ctx, Credential{AccessToken: "at-expired", RefreshToken: "rt"})

	user, err := c.Auth().Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alex", user.Username)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDoSecondUnauthorizedInvalidatesSession(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at-new"})
			return
		}
		// Still 401 even with the fresh token.
		http.Error(w, `{"detail":"nope"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	c.creds.set(ctx, Credential{AccessToken: "at", RefreshToken: "rt"})

	invalidated := make(chan struct{}, 1)
	c.OnSessionInvalidated(func() { invalidated <- struct{}{} })

	_, err := c.Auth().Me(ctx)
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, c.creds.access(), "credentials must be wiped")

	select {
	case <-invalidated:
	case <-time.After(time.Second):
		t.Fatal("session-invalidated hook never fired")
	}
}

func TestDoRefreshFailureInvalidatesSession(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	c.creds.set(ctx, Credential{AccessToken: "at", RefreshToken: "rt"})

	_, err := c.do(ctx, "/events/", RequestOptions{})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, c.creds.access())
}

func TestDoNonJSONSuccessNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	data, err := c.do(context.Background(), "/ping", RequestOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}

func TestDoEmptySuccessNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	data, err := c.do(context.Background(), "/events/e1", RequestOptions{Method: http.MethodDelete})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}

func TestDoErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"recipient not found"}`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	_, err := c.do(context.Background(), "/care-recipients/x", RequestOptions{})

	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusNotFound, herr.Status)
	assert.Equal(t, "recipient not found", herr.Detail)
}

func TestDoTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c, _ := testClient(t, srv.URL)
	_, err := c.do(context.Background(), "/events/", RequestOptions{})
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestOfflineGetServedFromCache(t *testing.T) {
	ctx := context.Background()
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	c.cache.Write(ctx, "events_all", json.RawMessage(`[{"id":"e1"}]`))

	data, err := c.do(ctx, "/events/", RequestOptions{CacheKey: "events_all"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"e1"}]`, string(data))
}

func TestOfflineGetMissReturnsCacheMiss(t *testing.T) {
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	_, err := c.do(context.Background(), "/events/", RequestOptions{CacheKey: "events_all"})
	var merr *CacheMissError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "events_all", merr.Key)
}

func TestCachedGetFallsBackOnNetworkFailure(t *testing.T) {
	ctx := context.Background()
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			panic(http.ErrAbortHandler)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"e1","type":"feeding","timestamp":"2025-06-01T10:00:00Z"}]`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)

	events, err := c.Events().List(ctx, EventListParams{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Server starts resetting connections; the cached copy serves the read.
	healthy.Store(false)
	events, err = c.Events().List(ctx, EventListParams{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestOfflineUnsupportedMethod(t *testing.T) {
	c, _ := testClient(t, "http://unreachable.invalid")

	_, err := c.offlineWrite(context.Background(), "/events/", http.MethodGet, RequestOptions{})
	var uerr *OfflineUnsupportedError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.MethodGet, uerr.Method)
}
