package caresync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncStatus describes where the client stands relative to the server.
type SyncStatus string

const (
	// StatusSynced means online with nothing queued.
	StatusSynced SyncStatus = "synced"
	// StatusPending means online with queued work awaiting replay.
	StatusPending SyncStatus = "pending"
	// StatusSyncing means a replay pass is in progress.
	StatusSyncing SyncStatus = "syncing"
	// StatusError means the last replay pass left failures behind.
	StatusError SyncStatus = "error"
	// StatusOffline means the client believes it has no connectivity.
	StatusOffline SyncStatus = "offline"
)

// Status is a point-in-time connectivity and queue snapshot.
type Status struct {
	Online       bool       `json:"online"`
	Status       SyncStatus `json:"status"`
	PendingCount int        `json:"pending_count"`
	LastSync     time.Time  `json:"last_sync,omitempty"`
}

// SyncResult summarizes one replay pass over the queues.
type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Evicted int `json:"evicted"`
}

type syncState struct {
	mu       sync.Mutex
	online   bool
	syncing  bool
	status   SyncStatus
	lastSync time.Time

	statusFns  []func(Status)
	sessionFns []func()
}

func (s *syncState) snapshot(pending int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Online: s.online, Status: s.status, PendingCount: pending, LastSync: s.lastSync}
}

func (s *syncState) setStatus(status SyncStatus, pending int) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	fns := make([]func(Status), len(s.statusFns))
	copy(fns, s.statusFns)
	snap := Status{Online: s.online, Status: s.status, PendingCount: pending, LastSync: s.lastSync}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		f := fn
		func() {
			defer func() { _ = recover() }()
			f(snap)
		}()
	}
}

func (s *syncState) beginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing || !s.online {
		return false
	}
	s.syncing = true
	return true
}

func (s *syncState) endSync() {
	s.mu.Lock()
	s.syncing = false
	s.lastSync = time.Now()
	s.mu.Unlock()
}

func (s *syncState) isSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

func (s *syncState) onStatus(fn func(Status)) {
	s.mu.Lock()
	s.statusFns = append(s.statusFns, fn)
	s.mu.Unlock()
}

func (s *syncState) onSessionInvalidated(fn func()) {
	s.mu.Lock()
	s.sessionFns = append(s.sessionFns, fn)
	s.mu.Unlock()
}

func (s *syncState) sessionHandlers() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(), len(s.sessionFns))
	copy(fns, s.sessionFns)
	return fns
}

// Online reports the client's current connectivity belief.
func (c *Client) Online() bool {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.online
}

// SetOnline updates the connectivity belief. Going online kicks off a
// background replay of the queues; going offline flips the status
// immediately.
func (c *Client) SetOnline(online bool) {
	c.state.mu.Lock()
	changed := c.state.online != online
	c.state.online = online
	c.state.mu.Unlock()
	if !changed {
		return
	}

	if !online {
		pending, _ := c.pendingCount(context.Background())
		c.state.setStatus(StatusOffline, pending)
		return
	}

	c.log.Info("connectivity restored, replaying queued work")
	c.recomputeStatus(context.Background())
	go func() {
		if _, err := c.SyncPendingMutations(context.Background()); err != nil {
			c.log.Warn("background sync failed", zap.Error(err))
		}
	}()
}

// OnStatusChange registers a hook fired whenever the sync status changes.
func (c *Client) OnStatusChange(fn func(Status)) {
	c.state.onStatus(fn)
}

// Status returns a snapshot of connectivity, sync status, and queue depth.
func (c *Client) Status(ctx context.Context) Status {
	pending, _ := c.pendingCount(ctx)
	return c.state.snapshot(pending)
}

// pendingCount sums both outboxes: a held photo is unsynced work just as
// much as a held mutation.
func (c *Client) pendingCount(ctx context.Context) (int, error) {
	mutations, err := c.queue.Count(ctx)
	if err != nil {
		return 0, err
	}
	photos, err := c.photoQueue.Count(ctx)
	if err != nil {
		return mutations, err
	}
	return mutations + photos, nil
}

// recomputeStatus derives the status from connectivity and queue depth. A
// replay pass in flight owns the status until it finishes.
func (c *Client) recomputeStatus(ctx context.Context) {
	if c.state.isSyncing() {
		return
	}
	if !c.Online() {
		pending, _ := c.pendingCount(ctx)
		c.state.setStatus(StatusOffline, pending)
		return
	}
	pending, err := c.pendingCount(ctx)
	if err != nil {
		c.log.Warn("failed to count pending work", zap.Error(err))
		return
	}
	if pending > 0 {
		c.state.setStatus(StatusPending, pending)
	} else {
		c.state.setStatus(StatusSynced, 0)
	}
}

// SyncPendingMutations replays the mutation queue in enqueue order, then
// drains the photo queue. Mutations whose endpoint still references a
// temporary record are held without a retry penalty until the create that
// produces the real ID has replayed. Only one pass runs at a time.
func (c *Client) SyncPendingMutations(ctx context.Context) (*SyncResult, error) {
	if !c.state.beginSync() {
		return &SyncResult{}, nil
	}
	res := &SyncResult{}
	defer func() {
		c.state.endSync()
		// An evicted item is a failure that happened to exhaust its retries.
		failures := res.Failed + res.Evicted
		switch {
		case failures > 0 && res.Synced == 0:
			pendingNow, _ := c.pendingCount(ctx)
			c.state.setStatus(StatusError, pendingNow)
		case failures > 0:
			pendingNow, _ := c.pendingCount(ctx)
			c.state.setStatus(StatusPending, pendingNow)
		default:
			c.recomputeStatus(ctx)
		}
	}()

	pending, err := c.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		total, _ := c.pendingCount(ctx)
		c.state.setStatus(StatusSyncing, total)
		c.log.Info("replaying mutation queue", zap.Int("pending", len(pending)))
	}

	for _, m := range pending {
		// Connectivity can drop mid-pass; the remaining items stay queued.
		if !c.Online() {
			res.Skipped++
			continue
		}
		if m.Action != ActionCreate && isTempID(pathTail(m.Endpoint)) {
			res.Skipped++
			continue
		}
		if err := c.replayMutation(ctx, m); err != nil {
			m.RetryCount++
			if m.RetryCount >= maxQueueRetries {
				c.log.Warn("dropping mutation after repeated failures",
					zap.String("id", m.ID),
					zap.String("endpoint", m.Endpoint),
					zap.Error(err))
				_ = c.queue.Remove(ctx, m.ID)
				res.Evicted++
			} else {
				if uerr := c.queue.Update(ctx, m); uerr != nil {
					c.log.Warn("failed to persist retry count", zap.String("id", m.ID), zap.Error(uerr))
				}
				res.Failed++
			}
			continue
		}
		_ = c.queue.Remove(ctx, m.ID)
		res.Synced++
	}

	photoRes := c.drainPhotos(ctx)
	res.Synced += photoRes.Synced
	res.Failed += photoRes.Failed
	res.Skipped += photoRes.Skipped
	res.Evicted += photoRes.Evicted

	c.log.Info("sync pass complete",
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("evicted", res.Evicted))
	return res, nil
}

func (c *Client) replayMutation(ctx context.Context, m *QueuedMutation) error {
	var method string
	switch m.Action {
	case ActionCreate:
		method = http.MethodPost
	case ActionUpdate:
		method = http.MethodPatch
	case ActionDelete:
		method = http.MethodDelete
	default:
		// Unknown action, remove rather than retry forever.
		return nil
	}

	opts := RequestOptions{
		Method:  method,
		Headers: map[string]string{"X-Idempotency-Key": m.IdempotencyKey},
	}
	if len(m.Payload) > 0 {
		opts.Body = json.RawMessage(m.Payload)
	}

	data, err := c.do(ctx, m.Endpoint, opts)
	if err != nil {
		return err
	}

	if m.Action == ActionCreate && isTempID(m.RecordID) {
		c.reconcileCreate(ctx, m.RecordID, data)
	}
	return nil
}

// reconcileCreate swaps a temporary record ID for the server-assigned one
// across both queues, and drops the optimistic cache entry now that the
// server copy exists.
func (c *Client) reconcileCreate(ctx context.Context, tempID string, response json.RawMessage) {
	var created struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(response, &created) != nil || created.ID == "" || isTempID(created.ID) {
		return
	}

	c.log.Debug("reconciling temporary record",
		zap.String("temp_id", tempID),
		zap.String("real_id", created.ID))
	c.photoQueue.ReassignEventID(ctx, tempID, created.ID)
	c.queue.reassignEndpoints(ctx, tempID, created.ID)

	keys, err := c.cache.Keys(ctx)
	if err != nil {
		return
	}
	for _, k := range keys {
		if containsTempRef(k, tempID) {
			c.cache.Remove(ctx, k)
		}
	}
}

// drainPhotos uploads queued photos whose event has a real ID. Photos still
// pointing at a temporary event are held untouched.
func (c *Client) drainPhotos(ctx context.Context) SyncResult {
	var res SyncResult
	pending, err := c.photoQueue.ListPending(ctx)
	if err != nil {
		c.log.Warn("failed to list photo queue", zap.Error(err))
		return res
	}

	for _, p := range pending {
		if !c.Online() {
			res.Skipped++
			continue
		}
		if isTempID(p.EventID) {
			res.Skipped++
			continue
		}
		if _, err := c.photos.uploadBlob(ctx, p.EventID, p.Filename, p.MimeType, p.Blob); err != nil {
			p.RetryCount++
			if p.RetryCount >= maxQueueRetries {
				c.log.Warn("dropping photo after repeated failures",
					zap.String("id", p.ID),
					zap.String("event_id", p.EventID),
					zap.Error(err))
				_ = c.photoQueue.Remove(ctx, p.ID)
				res.Evicted++
			} else {
				if uerr := c.photoQueue.Update(ctx, p); uerr != nil {
					c.log.Warn("failed to persist photo retry count", zap.String("id", p.ID), zap.Error(uerr))
				}
				res.Failed++
			}
			continue
		}
		_ = c.photoQueue.Remove(ctx, p.ID)
		res.Synced++
	}
	return res
}
