package caresync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// EventsClient manages care events: feedings, medications, diaper changes,
// and the rest of the daily log.
type EventsClient struct{ c *Client }

func eventsCacheKey(recipientID string) string {
	if recipientID == "" {
		return "events_all"
	}
	return "events_" + recipientID
}

func eventStatsCacheKey(recipientID string) string {
	if recipientID == "" {
		return "event_stats_all"
	}
	return "event_stats_" + recipientID
}

// Create records a new event. While offline the event is queued for replay
// and an optimistic copy with a temporary ID is returned immediately.
func (e *EventsClient) Create(ctx context.Context, event map[string]any) (*Event, error) {
	data, err := e.c.do(ctx, "/events/", RequestOptions{
		Method:         http.MethodPost,
		Body:           event,
		QueueIfOffline: true,
		CacheKey:       "event",
	})
	if err != nil {
		return nil, err
	}
	created, err := decodeJSON[Event](data)
	if err != nil {
		return nil, err
	}
	if !created.Offline {
		e.c.cache.Write(ctx, "event_"+created.ID, data)
	}
	return created, nil
}

// List returns events matching params, newest first. Served from cache when
// the network is unreachable.
func (e *EventsClient) List(ctx context.Context, params EventListParams) ([]Event, error) {
	q := url.Values{}
	if params.Type != "" {
		q.Set("event_type", params.Type)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.Start != "" {
		q.Set("start_date", params.Start)
	}
	if params.End != "" {
		q.Set("end_date", params.End)
	}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.RecipientID != "" {
		q.Set("care_recipient_id", params.RecipientID)
	}

	endpoint := "/events/"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	data, err := e.c.cachedGet(ctx, endpoint, eventsCacheKey(params.RecipientID))
	if err != nil {
		return nil, err
	}
	events, err := decodeJSON[[]Event](data)
	if err != nil {
		return nil, err
	}
	return *events, nil
}

// Get returns one event by ID.
func (e *EventsClient) Get(ctx context.Context, id string) (*Event, error) {
	data, err := e.c.cachedGet(ctx, "/events/"+id, "event_"+id)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Event](data)
}

// Update patches an event. Offline updates are queued; an update against a
// not-yet-synced event is held until its create replays.
func (e *EventsClient) Update(ctx context.Context, id string, updates map[string]any) (*Event, error) {
	data, err := e.c.do(ctx, "/events/"+id, RequestOptions{
		Method:         http.MethodPatch,
		Body:           updates,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	updated, err := decodeJSON[Event](data)
	if err != nil {
		return nil, err
	}
	if !updated.Offline && updated.ID != "" {
		e.c.cache.Write(ctx, "event_"+updated.ID, data)
	}
	return updated, nil
}

// Delete removes an event, queueing the delete while offline.
func (e *EventsClient) Delete(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := e.c.do(ctx, fmt.Sprintf("/events/%s", id), RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	e.c.cache.Remove(ctx, "event_"+id)
	return decodeJSON[SuccessResult](data)
}

// Stats returns per-type event counts, optionally scoped to one recipient.
func (e *EventsClient) Stats(ctx context.Context, recipientID string) (EventStats, error) {
	endpoint := "/events/stats/summary"
	if recipientID != "" {
		endpoint += "?care_recipient_id=" + url.QueryEscape(recipientID)
	}
	data, err := e.c.cachedGet(ctx, endpoint, eventStatsCacheKey(recipientID))
	if err != nil {
		return nil, err
	}
	stats, err := decodeJSON[EventStats](data)
	if err != nil {
		return nil, err
	}
	return *stats, nil
}
