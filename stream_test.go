package caresync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSSEDispatchesEvents(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stream", r.URL.Path)
		require.Equal(t, "tok-1", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprint(w, ": keepalive\n")
		flusher.Flush()
		fmt.Fprint(w, `data: {"type":"event_created","payload":{"event_id":"evt_1","event_type":"feeding"}}`+"\n")
		flusher.Flush()
		fmt.Fprint(w, `data: {"type":"photo_uploaded","payload":{"photo_id":"ph_1","event_id":"evt_1"}}`+"\n")
		flusher.Flush()

		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	c.creds.set(ctx, Credential{AccessToken: "tok-1"})

	stream := c.NewStream(TransportSSE, &StreamConfig{AutoReconnect: false})

	events := make(chan EventChangedPayload, 1)
	photos := make(chan PhotoUploadedPayload, 1)
	stream.OnEventChanged(func(kind string, p EventChangedPayload) {
		assert.Equal(t, "event_created", kind)
		events <- p
	})
	stream.OnPhotoUploaded(func(p PhotoUploadedPayload) { photos <- p })

	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()
	assert.Equal(t, StateConnected, stream.State())

	select {
	case p := <-events:
		assert.Equal(t, "evt_1", p.EventID)
		assert.Equal(t, "feeding", p.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("event_created never dispatched")
	}
	select {
	case p := <-photos:
		assert.Equal(t, "ph_1", p.PhotoID)
	case <-time.After(2 * time.Second):
		t.Fatal("photo_uploaded never dispatched")
	}
}

func TestStreamGenericHandlerAndConnectivityWiring(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, `data: {"type":"custom_ping","payload":{"n":1}}`+"\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	c.SetOnline(false)

	stream := c.NewStream(TransportSSE, &StreamConfig{AutoReconnect: false})

	generic := make(chan string, 1)
	stream.On("custom_ping", func(eventType string, payload json.RawMessage) {
		generic <- eventType
	})

	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()

	select {
	case got := <-generic:
		assert.Equal(t, "custom_ping", got)
	case <-time.After(2 * time.Second):
		t.Fatal("generic handler never fired")
	}

	// A live stream is proof of connectivity.
	require.Eventually(t, c.Online, 2*time.Second, 10*time.Millisecond)
}

func TestStreamConnectRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	stream := c.NewStream(TransportSSE, &StreamConfig{AutoReconnect: false})

	err := stream.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, stream.State())
}

func TestStreamConnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	stream := c.NewStream(TransportSSE, &StreamConfig{AutoReconnect: false})

	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()
	require.NoError(t, stream.Connect(ctx), "connecting an already-connected stream is a no-op")
	assert.Equal(t, StateConnected, stream.State())
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := newRetryBackoff(&StreamConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    10 * time.Second,
		MaxReconnectAttempts: 4,
	})

	var prev time.Duration
	for i := 0; i < 4; i++ {
		require.True(t, b.allow(), "attempt %d", i)
		d := b.next()
		assert.GreaterOrEqual(t, d, prev, "delays must not shrink")
		assert.LessOrEqual(t, d, 10*time.Second, "delay must respect the cap")
		prev = d
	}
	assert.False(t, b.allow(), "attempts are bounded")

	b.reset()
	assert.True(t, b.allow())
	assert.Less(t, b.next(), 2*time.Second, "reset restarts the ladder")
}

func TestBackoffStableConnectionResetsLadder(t *testing.T) {
	b := newRetryBackoff(&StreamConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
	})

	for i := 0; i < 5; i++ {
		b.next()
	}
	b.upSince = time.Now().Add(-2 * time.Minute)
	assert.Less(t, b.next(), 2*time.Second,
		"a connection that held resets the backoff")
}
