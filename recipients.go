package caresync

import (
	"context"
	"net/http"
)

// RecipientsClient manages care recipients.
type RecipientsClient struct{ c *Client }

// List returns care recipients, optionally only active ones.
func (r *RecipientsClient) List(ctx context.Context, activeOnly bool) ([]Recipient, error) {
	endpoint := "/care-recipients/"
	key := "recipients_all"
	if activeOnly {
		endpoint += "?active_only=true"
		key = "recipients_active"
	}
	data, err := r.c.cachedGet(ctx, endpoint, key)
	if err != nil {
		return nil, err
	}
	recipients, err := decodeJSON[[]Recipient](data)
	if err != nil {
		return nil, err
	}
	return *recipients, nil
}

// Get returns one recipient by ID.
func (r *RecipientsClient) Get(ctx context.Context, id string) (*Recipient, error) {
	data, err := r.c.cachedGet(ctx, "/care-recipients/"+id, "recipient_"+id)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Recipient](data)
}

// Create adds a recipient. Queued while offline.
func (r *RecipientsClient) Create(ctx context.Context, recipient map[string]any) (*Recipient, error) {
	data, err := r.c.do(ctx, "/care-recipients/", RequestOptions{
		Method:         http.MethodPost,
		Body:           recipient,
		QueueIfOffline: true,
		CacheKey:       "recipient",
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Recipient](data)
}

// Update patches a recipient. Queued while offline.
func (r *RecipientsClient) Update(ctx context.Context, id string, updates map[string]any) (*Recipient, error) {
	data, err := r.c.do(ctx, "/care-recipients/"+id, RequestOptions{
		Method:         http.MethodPatch,
		Body:           updates,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Recipient](data)
}

// Delete removes a recipient. Queued while offline.
func (r *RecipientsClient) Delete(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := r.c.do(ctx, "/care-recipients/"+id, RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	r.c.cache.Remove(ctx, "recipient_"+id)
	return decodeJSON[SuccessResult](data)
}
