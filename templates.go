package caresync

import (
	"context"
	"net/http"
)

// TemplatesClient manages one-tap logging templates for medications and
// feedings.
type TemplatesClient struct{ c *Client }

// QuickMeds returns medication templates, optionally only active ones.
func (t *TemplatesClient) QuickMeds(ctx context.Context, activeOnly bool) ([]QuickMed, error) {
	endpoint := "/templates/quick-meds"
	key := "quick_meds_all"
	if activeOnly {
		endpoint += "?active_only=true"
		key = "quick_meds_active"
	}
	data, err := t.c.cachedGet(ctx, endpoint, key)
	if err != nil {
		return nil, err
	}
	meds, err := decodeJSON[[]QuickMed](data)
	if err != nil {
		return nil, err
	}
	return *meds, nil
}

// CreateQuickMed adds a medication template. Queued while offline.
func (t *TemplatesClient) CreateQuickMed(ctx context.Context, med map[string]any) (*QuickMed, error) {
	data, err := t.c.do(ctx, "/templates/quick-meds", RequestOptions{
		Method:         http.MethodPost,
		Body:           med,
		QueueIfOffline: true,
		CacheKey:       "quick_med",
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[QuickMed](data)
}

// UpdateQuickMed patches a medication template. Queued while offline.
func (t *TemplatesClient) UpdateQuickMed(ctx context.Context, id string, updates map[string]any) (*QuickMed, error) {
	data, err := t.c.do(ctx, "/templates/quick-meds/"+id, RequestOptions{
		Method:         http.MethodPatch,
		Body:           updates,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[QuickMed](data)
}

// DeleteQuickMed removes a medication template. Queued while offline.
func (t *TemplatesClient) DeleteQuickMed(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := t.c.do(ctx, "/templates/quick-meds/"+id, RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[SuccessResult](data)
}

// QuickFeeds returns feeding templates, optionally only active ones.
func (t *TemplatesClient) QuickFeeds(ctx context.Context, activeOnly bool) ([]QuickFeed, error) {
	endpoint := "/templates/quick-feeds"
	key := "quick_feeds_all"
	if activeOnly {
		endpoint += "?active_only=true"
		key = "quick_feeds_active"
	}
	data, err := t.c.cachedGet(ctx, endpoint, key)
	if err != nil {
		return nil, err
	}
	feeds, err := decodeJSON[[]QuickFeed](data)
	if err != nil {
		return nil, err
	}
	return *feeds, nil
}

// CreateQuickFeed adds a feeding template. Queued while offline.
func (t *TemplatesClient) CreateQuickFeed(ctx context.Context, feed map[string]any) (*QuickFeed, error) {
	data, err := t.c.do(ctx, "/templates/quick-feeds", RequestOptions{
		Method:         http.MethodPost,
		Body:           feed,
		QueueIfOffline: true,
		CacheKey:       "quick_feed",
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[QuickFeed](data)
}

// UpdateQuickFeed patches a feeding template. Queued while offline.
func (t *TemplatesClient) UpdateQuickFeed(ctx context.Context, id string, updates map[string]any) (*QuickFeed, error) {
	data, err := t.c.do(ctx, "/templates/quick-feeds/"+id, RequestOptions{
		Method:         http.MethodPatch,
		Body:           updates,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[QuickFeed](data)
}

// DeleteQuickFeed removes a feeding template. Queued while offline.
func (t *TemplatesClient) DeleteQuickFeed(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := t.c.do(ctx, "/templates/quick-feeds/"+id, RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[SuccessResult](data)
}
