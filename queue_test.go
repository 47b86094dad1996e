package caresync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testQueue() (*MutationQueue, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &MutationQueue{
		store: NewMemoryStore(),
		log:   zap.NewNop(),
		now:   func() time.Time { return now },
	}
	return q, &now
}

func TestQueueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q, now := testQueue()

	first, err := q.Enqueue(ctx, ActionCreate, "/events/", json.RawMessage(`{"n":1}`), "temp_1")
	require.NoError(t, err)
	*now = now.Add(time.Second)
	second, err := q.Enqueue(ctx, ActionUpdate, "/events/e9", json.RawMessage(`{"n":2}`), "")
	require.NoError(t, err)
	*now = now.Add(time.Second)
	third, err := q.Enqueue(ctx, ActionDelete, "/events/e3", nil, "")
	require.NoError(t, err)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, third.ID, pending[2].ID)
}

func TestQueueOrderStableUnderEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue()

	// Same enqueue instant; order must still be deterministic.
	var ids []string
	for i := 0; i < 5; i++ {
		m, err := q.Enqueue(ctx, ActionCreate, "/events/", nil, "")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	a, err := q.ListPending(ctx)
	require.NoError(t, err)
	b, err := q.ListPending(ctx)
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
	assert.ElementsMatch(t, ids, []string{a[0].ID, a[1].ID, a[2].ID, a[3].ID, a[4].ID})
}

func TestQueueIdempotencyKeyFixedAtEnqueue(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue()

	m, err := q.Enqueue(ctx, ActionCreate, "/events/", nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, m.IdempotencyKey)

	m.RetryCount++
	require.NoError(t, q.Update(ctx, m))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m.IdempotencyKey, pending[0].IdempotencyKey)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestQueueReassignEndpoints(t *testing.T) {
	ctx := context.Background()
	q, now := testQueue()

	tempID := "temp_1748779200000_abcdefghi"
	_, err := q.Enqueue(ctx, ActionUpdate, "/events/"+tempID,
		json.RawMessage(`{"notes":"x"}`), "")
	require.NoError(t, err)
	*now = now.Add(time.Second)
	_, err = q.Enqueue(ctx, ActionDelete, "/events/other", nil, "")
	require.NoError(t, err)

	q.reassignEndpoints(ctx, tempID, "evt_42")

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "/events/evt_42", pending[0].Endpoint)
	assert.Equal(t, "/events/other", pending[1].Endpoint)
}

func TestOfflineCreateProducesOptimisticRecord(t *testing.T) {
	ctx := context.Background()
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	created, err := c.Events().Create(ctx, map[string]any{
		"type":  "feeding",
		"notes": "120ml bottle",
	})
	require.NoError(t, err)

	assert.True(t, isTempID(created.ID))
	assert.True(t, created.Offline)
	assert.NotEmpty(t, created.QueueID)
	assert.Equal(t, "feeding", created.Type)
	assert.NotEmpty(t, created.CreatedAt)

	pending, err := c.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ActionCreate, pending[0].Action)
	assert.Equal(t, created.ID, pending[0].RecordID)

	st := c.Status(ctx)
	assert.Equal(t, StatusOffline, st.Status)
	assert.Equal(t, 1, st.PendingCount)
}

func TestOfflineUpdateAndDeleteQueueSuccessResults(t *testing.T) {
	ctx := context.Background()
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	updated, err := c.Events().Update(ctx, "e1", map[string]any{"notes": "new"})
	require.NoError(t, err)
	assert.True(t, updated.Offline)

	res, err := c.Events().Delete(ctx, "e2")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Offline)
	assert.NotEmpty(t, res.QueueID)

	count, err := c.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTransportFailureFallsBackToQueue(t *testing.T) {
	ctx := context.Background()
	// Online belief, but the server is unreachable.
	c, _ := testClient(t, "http://127.0.0.1:1")

	created, err := c.Events().Create(ctx, map[string]any{"type": "diaper"})
	require.NoError(t, err)
	assert.True(t, created.Offline)

	count, err := c.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueueDropsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	q, _ := testQueue()

	_, err := q.Enqueue(ctx, ActionCreate, "/events/", nil, "")
	require.NoError(t, err)
	require.NoError(t, q.store.Set(ctx, nsQueue, "junk", []byte("not json")))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "corrupt entry must be purged, not counted forever")
}

func TestReplayUnknownMethodNeverQueued(t *testing.T) {
	c, _ := testClient(t, "http://unreachable.invalid")
	c.SetOnline(false)

	_, err := c.do(context.Background(), "/settings/timezone", RequestOptions{
		Method:         http.MethodPut,
		Body:           map[string]string{"timezone": "UTC"},
		QueueIfOffline: true,
	})
	var uerr *OfflineUnsupportedError
	require.ErrorAs(t, err, &uerr)
}
