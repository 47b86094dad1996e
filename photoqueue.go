package caresync

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueuedPhoto is a photo captured while offline, held with its raw bytes
// until the upload succeeds or retries run out. A photo whose event still has
// a temporary ID is held without penalty until the event's create resolves.
type QueuedPhoto struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type,omitempty"`
	Blob       []byte    `json:"blob"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RetryCount int       `json:"retry_count"`
}

// PhotoQueue is the durable outbox for offline photo uploads.
type PhotoQueue struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// Enqueue stores a photo for later upload.
func (q *PhotoQueue) Enqueue(ctx context.Context, eventID, filename, mimeType string, blob []byte) (*QueuedPhoto, error) {
	p := &QueuedPhoto{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Filename:   filename,
		MimeType:   mimeType,
		Blob:       blob,
		EnqueuedAt: q.now(),
	}
	if err := q.put(ctx, p); err != nil {
		return nil, err
	}
	q.log.Info("queued offline photo",
		zap.String("id", p.ID),
		zap.String("event_id", eventID),
		zap.String("filename", filename),
		zap.Int("bytes", len(blob)))
	return p, nil
}

// ListPending returns queued photos in enqueue order.
func (q *PhotoQueue) ListPending(ctx context.Context) ([]*QueuedPhoto, error) {
	items, err := q.store.Items(ctx, nsPhotoQueue)
	if err != nil {
		return nil, err
	}
	pending := make([]*QueuedPhoto, 0, len(items))
	for _, it := range items {
		var p QueuedPhoto
		if err := json.Unmarshal(it.Value, &p); err != nil {
			q.log.Warn("dropping undecodable photo entry", zap.String("key", it.Key), zap.Error(err))
			_ = q.store.Remove(ctx, nsPhotoQueue, it.Key)
			continue
		}
		pending = append(pending, &p)
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// Remove deletes a queued photo by ID.
func (q *PhotoQueue) Remove(ctx context.Context, id string) error {
	return q.store.Remove(ctx, nsPhotoQueue, id)
}

// Update persists an in-place change, typically a bumped retry count.
func (q *PhotoQueue) Update(ctx context.Context, p *QueuedPhoto) error {
	return q.put(ctx, p)
}

// Count returns the number of queued photos.
func (q *PhotoQueue) Count(ctx context.Context) (int, error) {
	keys, err := q.store.Keys(ctx, nsPhotoQueue)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// PendingCountForEvent returns how many queued photos target an event.
func (q *PhotoQueue) PendingCountForEvent(ctx context.Context, eventID string) (int, error) {
	pending, err := q.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pending {
		if p.EventID == eventID {
			n++
		}
	}
	return n, nil
}

// ReassignEventID repoints queued photos from a temporary event ID to the
// server-assigned one, making them eligible for upload.
func (q *PhotoQueue) ReassignEventID(ctx context.Context, tempID, realID string) {
	pending, err := q.ListPending(ctx)
	if err != nil {
		q.log.Warn("failed to list photo queue for id reassignment", zap.Error(err))
		return
	}
	for _, p := range pending {
		if p.EventID != tempID {
			continue
		}
		p.EventID = realID
		if err := q.put(ctx, p); err != nil {
			q.log.Warn("failed to rewrite queued photo",
				zap.String("id", p.ID), zap.Error(err))
		}
	}
}

// Clear drops the whole photo queue.
func (q *PhotoQueue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx, nsPhotoQueue)
}

func (q *PhotoQueue) put(ctx context.Context, p *QueuedPhoto) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, nsPhotoQueue, p.ID, data)
}
