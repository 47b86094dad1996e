package caresync

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RequestOptions configures a single API request. Zero value means an
// unauthenticated-capable GET with no offline queueing.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	// Body is marshaled to JSON when non-nil.
	Body any

	// Headers are set after the defaults, so they can override Content-Type.
	Headers map[string]string

	// QueueIfOffline enqueues the write for later replay when the device is
	// offline or the transport fails. Reads never set it.
	QueueIfOffline bool

	// CacheKey names the cache entry consulted for offline reads and, for
	// offline creates, the prefix under which the optimistic record is
	// cached.
	CacheKey string

	// TempID, when set, is used for the optimistic record instead of a
	// generated one.
	TempID string
}

var successBody = json.RawMessage(`{"success":true}`)

// do performs one authenticated API call with offline fallback and the
// single 401→refresh→replay cycle.
func (c *Client) do(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	return c.doRetry(ctx, endpoint, opts, false)
}

func (c *Client) doRetry(ctx context.Context, endpoint string, opts RequestOptions, hasRetried bool) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	// Known-offline short-circuit: don't burn a network attempt.
	if !c.Online() {
		return c.offlineRequest(ctx, endpoint, method, opts)
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.creds.access(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		nerr := &NetworkError{Err: err}
		if opts.QueueIfOffline {
			c.log.Debug("request failed, falling back to offline queue",
				zap.String("endpoint", endpoint), zap.Error(err))
			return c.offlineRequest(ctx, endpoint, method, opts)
		}
		return nil, nerr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		if !hasRetried && endpoint != refreshEndpoint {
			if cred := c.refreshSession(ctx); cred != nil && cred.AccessToken != "" {
				return c.doRetry(ctx, endpoint, opts, true)
			}
		}
		c.invalidateSession(ctx)
		return nil, &AuthError{Reason: "session expired"}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	contentType := resp.Header.Get("Content-Type")

	if !strings.Contains(contentType, "application/json") {
		if !ok {
			return nil, &HTTPError{Status: resp.StatusCode}
		}
		return successBody, nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		if !ok {
			return nil, &HTTPError{Status: resp.StatusCode}
		}
		return successBody, nil
	}

	if !ok {
		var payload struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(data, &payload)
		return nil, &HTTPError{Status: resp.StatusCode, Detail: payload.Detail}
	}

	return json.RawMessage(data), nil
}

// cachedGet performs a GET with read-through caching: a fresh response
// refreshes the cache entry, a transport failure falls back to it.
func (c *Client) cachedGet(ctx context.Context, endpoint, key string) (json.RawMessage, error) {
	data, err := c.do(ctx, endpoint, RequestOptions{CacheKey: key})
	if err == nil {
		c.cache.Write(ctx, key, data)
		return data, nil
	}
	if IsNetworkError(err) {
		if cached, ok := c.cache.Read(ctx, key); ok {
			c.log.Debug("serving cached response after network failure",
				zap.String("key", key))
			return cached, nil
		}
	}
	return nil, err
}

// offlineRequest routes a request that cannot reach the network: reads go to
// the cache, writes to the mutation queue.
func (c *Client) offlineRequest(ctx context.Context, endpoint, method string, opts RequestOptions) (json.RawMessage, error) {
	if method == http.MethodGet {
		key := opts.CacheKey
		if key == "" {
			key = endpoint
		}
		if data, ok := c.cache.Read(ctx, key); ok {
			return data, nil
		}
		return nil, &CacheMissError{Key: key}
	}
	return c.offlineWrite(ctx, endpoint, method, opts)
}

// offlineWrite queues a write for later replay and synthesizes the optimistic
// response the caller sees immediately.
func (c *Client) offlineWrite(ctx context.Context, endpoint, method string, opts RequestOptions) (json.RawMessage, error) {
	var action MutationAction
	switch method {
	case http.MethodPost:
		action = ActionCreate
	case http.MethodPatch:
		action = ActionUpdate
	case http.MethodDelete:
		action = ActionDelete
	default:
		return nil, &OfflineUnsupportedError{Method: method}
	}

	var payload json.RawMessage
	if opts.Body != nil && method != http.MethodDelete {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal queued payload: %w", err)
		}
		payload = b
	}

	tempID := opts.TempID
	if tempID == "" {
		tempID = newTempID(c.now())
	}
	recordID := ""
	if action == ActionCreate {
		recordID = tempID
	}

	item, err := c.queue.Enqueue(ctx, action, endpoint, payload, recordID)
	if err != nil {
		return nil, err
	}
	c.recomputeStatus(ctx)

	if action != ActionCreate {
		out, _ := json.Marshal(SuccessResult{Success: true, Offline: true, QueueID: item.ID})
		return out, nil
	}

	// Optimistic record: the queued payload plus local bookkeeping fields.
	record := map[string]any{}
	if payload != nil {
		_ = json.Unmarshal(payload, &record)
	}
	stamp := c.now().UTC().Format(time.RFC3339)
	record["id"] = tempID
	record["_offline"] = true
	record["_queueId"] = item.ID
	record["created_at"] = stamp
	record["updated_at"] = stamp

	out, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal optimistic record: %w", err)
	}
	if opts.CacheKey != "" {
		c.cache.Write(ctx, opts.CacheKey+"_"+tempID, out)
	}
	return out, nil
}

const tempIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newTempID generates a client-side placeholder id, unique for the session.
func newTempID(now time.Time) string {
	suffix := make([]byte, 9)
	_, _ = rand.Read(suffix)
	for i := range suffix {
		suffix[i] = tempIDAlphabet[int(suffix[i])%len(tempIDAlphabet)]
	}
	return fmt.Sprintf("temp_%d_%s", now.UnixMilli(), suffix)
}

// isTempID reports whether id is a client-generated placeholder not yet
// acknowledged by the server.
func isTempID(id string) bool {
	return strings.HasPrefix(id, "temp_")
}

// pathTail returns the final path segment of an endpoint, with any query
// string stripped.
func pathTail(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if i := strings.LastIndexByte(endpoint, '/'); i >= 0 {
		return endpoint[i+1:]
	}
	return endpoint
}

func containsTempRef(s, tempID string) bool {
	return strings.Contains(s, tempID)
}
