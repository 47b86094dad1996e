package caresync

import (
	"context"
	"errors"
	"net/http"
)

// FeedsClient manages continuous (pump) feeding sessions.
type FeedsClient struct{ c *Client }

// Active returns the in-progress feed for a recipient, or ErrNotFound when
// none is running.
func (f *FeedsClient) Active(ctx context.Context, recipientID string) (*ContinuousFeed, error) {
	data, err := f.c.cachedGet(ctx, "/continuous-feeds/active/"+recipientID, "continuous_feed_"+recipientID)
	if err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) && herr.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeJSON[ContinuousFeed](data)
}

// Start begins a continuous feed session.
func (f *FeedsClient) Start(ctx context.Context, feed map[string]any) (*ContinuousFeed, error) {
	data, err := f.c.do(ctx, "/continuous-feeds/", RequestOptions{
		Method: http.MethodPost,
		Body:   feed,
	})
	if err != nil {
		return nil, err
	}
	started, err := decodeJSON[ContinuousFeed](data)
	if err != nil {
		return nil, err
	}
	if started.RecipientID != "" {
		f.c.cache.Write(ctx, "continuous_feed_"+started.RecipientID, data)
	}
	return started, nil
}

// Stop ends a continuous feed session, producing a feeding event.
func (f *FeedsClient) Stop(ctx context.Context, id string, finalTotals map[string]any) (*ContinuousFeed, error) {
	data, err := f.c.do(ctx, "/continuous-feeds/"+id+"/stop", RequestOptions{
		Method: http.MethodPost,
		Body:   finalTotals,
	})
	if err != nil {
		return nil, err
	}
	stopped, err := decodeJSON[ContinuousFeed](data)
	if err != nil {
		return nil, err
	}
	if stopped.RecipientID != "" {
		f.c.cache.Remove(ctx, "continuous_feed_"+stopped.RecipientID)
	}
	return stopped, nil
}
