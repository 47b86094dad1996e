package caresync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPhotoQueue() (*PhotoQueue, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &PhotoQueue{
		store: NewMemoryStore(),
		log:   zap.NewNop(),
		now:   func() time.Time { return now },
	}
	return q, &now
}

func TestPhotoQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q, now := testPhotoQueue()

	first, err := q.Enqueue(ctx, "evt_1", "a.jpg", "image/jpeg", []byte("aaa"))
	require.NoError(t, err)
	*now = now.Add(time.Second)
	_, err = q.Enqueue(ctx, "evt_2", "b.jpg", "image/jpeg", []byte("bbb"))
	require.NoError(t, err)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, []byte("aaa"), pending[0].Blob, "blob bytes must survive storage")

	n, err := q.PendingCountForEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, q.Remove(ctx, first.ID))
	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPhotoQueueReassignEventID(t *testing.T) {
	ctx := context.Background()
	q, now := testPhotoQueue()

	tempID := "temp_1748779200000_abcdefghi"
	_, err := q.Enqueue(ctx, tempID, "a.jpg", "image/jpeg", []byte("aaa"))
	require.NoError(t, err)
	*now = now.Add(time.Second)
	_, err = q.Enqueue(ctx, "evt_other", "b.jpg", "image/jpeg", []byte("bbb"))
	require.NoError(t, err)

	q.ReassignEventID(ctx, tempID, "evt_9")

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "evt_9", pending[0].EventID)
	assert.Equal(t, "evt_other", pending[1].EventID)
}

func TestUploadQueuesWhileOffline(t *testing.T) {
	ctx := context.Background()
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	photo, err := c.Photos().Upload(ctx, "evt_1", "snack.jpg", bytes.NewReader([]byte("jpegdata")))
	require.NoError(t, err)
	assert.True(t, photo.Offline)
	assert.Equal(t, "evt_1", photo.EventID)
	assert.EqualValues(t, 8, photo.SizeBytes)

	n, err := c.Photos().PendingCount(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUploadQueuesOnTransportFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := testClient(t, "http://127.0.0.1:1")

	photo, err := c.Photos().Upload(ctx, "evt_1", "snack.jpg", bytes.NewReader([]byte("jpegdata")))
	require.NoError(t, err)
	assert.True(t, photo.Offline)

	count, err := c.photoQueue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUploadSendsMultipart(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/photos/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "evt_1", r.FormValue("event_id"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "snack.jpg", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpegdata"), data)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Photo{ID: "ph_1", EventID: "evt_1", Filename: "snack.jpg"})
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	photo, err := c.Photos().Upload(ctx, "evt_1", "snack.jpg", bytes.NewReader([]byte("jpegdata")))
	require.NoError(t, err)
	assert.Equal(t, "ph_1", photo.ID)
	assert.False(t, photo.Offline)

	count, err := c.photoQueue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUploadServerRejectionIsNotQueued(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"detail":"file too large"}`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	_, err := c.Photos().Upload(ctx, "evt_1", "huge.jpg", bytes.NewReader([]byte("x")))

	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "file too large", herr.Detail)

	count, err := c.photoQueue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a definitive server rejection must not be retried")
}

func TestUploadPlainTextRejectionHasNoDetail(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blew up", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	_, err := c.Photos().Upload(ctx, "evt_1", "a.jpg", bytes.NewReader([]byte("x")))

	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusBadGateway, herr.Status)
	assert.Empty(t, herr.Detail, "detail is only read from JSON bodies")
}
