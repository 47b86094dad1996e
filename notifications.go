package caresync

import (
	"context"
	"net/http"
)

// NotificationsClient manages web-push subscriptions.
type NotificationsClient struct{ c *Client }

// VAPIDKey returns the server's public key for push subscription.
func (n *NotificationsClient) VAPIDKey(ctx context.Context) (string, error) {
	data, err := n.c.cachedGet(ctx, "/notifications/vapid-key", "vapid_key")
	if err != nil {
		return "", err
	}
	result, err := decodeJSON[struct {
		PublicKey string `json:"public_key"`
	}](data)
	if err != nil {
		return "", err
	}
	return result.PublicKey, nil
}

// Subscriptions lists the account's push subscriptions.
func (n *NotificationsClient) Subscriptions(ctx context.Context) ([]PushSubscription, error) {
	data, err := n.c.do(ctx, "/notifications/subscriptions", RequestOptions{})
	if err != nil {
		return nil, err
	}
	subs, err := decodeJSON[[]PushSubscription](data)
	if err != nil {
		return nil, err
	}
	return *subs, nil
}

// Subscribe registers a push subscription.
func (n *NotificationsClient) Subscribe(ctx context.Context, sub PushSubscription) error {
	_, err := n.c.do(ctx, "/notifications/subscribe", RequestOptions{
		Method: http.MethodPost,
		Body:   sub,
	})
	return err
}

// Unsubscribe removes a push subscription by its endpoint URL.
func (n *NotificationsClient) Unsubscribe(ctx context.Context, endpoint string) error {
	_, err := n.c.do(ctx, "/notifications/unsubscribe", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"endpoint": endpoint},
	})
	return err
}

// SendTest asks the server to push a test notification.
func (n *NotificationsClient) SendTest(ctx context.Context) error {
	_, err := n.c.do(ctx, "/notifications/test", RequestOptions{
		Method: http.MethodPost,
	})
	return err
}
