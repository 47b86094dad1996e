package caresync

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MutationAction names the write kind a queued mutation replays as.
type MutationAction string

const (
	ActionCreate MutationAction = "create"
	ActionUpdate MutationAction = "update"
	ActionDelete MutationAction = "delete"
)

// QueuedMutation is a write captured while offline, durably stored until it
// replays against the server or exhausts its retries.
type QueuedMutation struct {
	ID             string          `json:"id"`
	Action         MutationAction  `json:"action"`
	Endpoint       string          `json:"endpoint"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	RecordID       string          `json:"record_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	RetryCount     int             `json:"retry_count"`
}

// MutationQueue is the durable FIFO outbox for offline writes.
type MutationQueue struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// Enqueue appends a mutation and returns it. The idempotency key is fixed at
// enqueue time so every replay attempt presents the same key.
func (q *MutationQueue) Enqueue(ctx context.Context, action MutationAction, endpoint string, payload json.RawMessage, recordID string) (*QueuedMutation, error) {
	m := &QueuedMutation{
		ID:             uuid.NewString(),
		Action:         action,
		Endpoint:       endpoint,
		Payload:        payload,
		RecordID:       recordID,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     q.now(),
	}
	if err := q.put(ctx, m); err != nil {
		return nil, err
	}
	q.log.Info("queued offline mutation",
		zap.String("id", m.ID),
		zap.String("action", string(action)),
		zap.String("endpoint", endpoint))
	return m, nil
}

// ListPending returns all queued mutations in enqueue order. Ties on the
// timestamp break on ID so the order is stable.
func (q *MutationQueue) ListPending(ctx context.Context) ([]*QueuedMutation, error) {
	items, err := q.store.Items(ctx, nsQueue)
	if err != nil {
		return nil, err
	}
	pending := make([]*QueuedMutation, 0, len(items))
	for _, it := range items {
		var m QueuedMutation
		if err := json.Unmarshal(it.Value, &m); err != nil {
			q.log.Warn("dropping undecodable queue entry", zap.String("key", it.Key), zap.Error(err))
			_ = q.store.Remove(ctx, nsQueue, it.Key)
			continue
		}
		pending = append(pending, &m)
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// Remove deletes a mutation by ID.
func (q *MutationQueue) Remove(ctx context.Context, id string) error {
	return q.store.Remove(ctx, nsQueue, id)
}

// Update persists an in-place change, typically a bumped retry count.
func (q *MutationQueue) Update(ctx context.Context, m *QueuedMutation) error {
	return q.put(ctx, m)
}

// Count returns the number of queued mutations.
func (q *MutationQueue) Count(ctx context.Context) (int, error) {
	keys, err := q.store.Keys(ctx, nsQueue)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear drops the whole queue.
func (q *MutationQueue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx, nsQueue)
}

// reassignEndpoints rewrites every queued mutation that still references a
// temporary record ID, pointing it at the server-assigned ID. Runs after a
// queued create succeeds so dependent updates and deletes become replayable.
func (q *MutationQueue) reassignEndpoints(ctx context.Context, tempID, realID string) {
	pending, err := q.ListPending(ctx)
	if err != nil {
		q.log.Warn("failed to list queue for id reassignment", zap.Error(err))
		return
	}
	for _, m := range pending {
		changed := false
		if strings.Contains(m.Endpoint, tempID) {
			m.Endpoint = strings.ReplaceAll(m.Endpoint, tempID, realID)
			changed = true
		}
		if bytes.Contains(m.Payload, []byte(tempID)) {
			m.Payload = bytes.ReplaceAll(m.Payload, []byte(tempID), []byte(realID))
			changed = true
		}
		if changed {
			if err := q.put(ctx, m); err != nil {
				q.log.Warn("failed to rewrite queued mutation",
					zap.String("id", m.ID), zap.Error(err))
			}
		}
	}
}

func (q *MutationQueue) put(ctx context.Context, m *QueuedMutation) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, nsQueue, m.ID, data)
}
