package caresync

import (
	"context"
	"net/http"
)

// SettingsClient manages account-level settings.
type SettingsClient struct{ c *Client }

// Timezone returns the account timezone.
func (s *SettingsClient) Timezone(ctx context.Context) (*TimezoneSetting, error) {
	data, err := s.c.cachedGet(ctx, "/settings/timezone", "settings_timezone")
	if err != nil {
		return nil, err
	}
	return decodeJSON[TimezoneSetting](data)
}

// SetTimezone updates the account timezone.
func (s *SettingsClient) SetTimezone(ctx context.Context, tz string) (*TimezoneSetting, error) {
	data, err := s.c.do(ctx, "/settings/timezone", RequestOptions{
		Method: http.MethodPut,
		Body:   TimezoneSetting{Timezone: tz},
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[TimezoneSetting](data)
}

// NotificationSettings returns the reminder notification preferences.
func (s *SettingsClient) NotificationSettings(ctx context.Context) (*NotificationSettings, error) {
	data, err := s.c.cachedGet(ctx, "/settings/notifications", "settings_notifications")
	if err != nil {
		return nil, err
	}
	return decodeJSON[NotificationSettings](data)
}

// SetNotificationSettings updates the reminder notification preferences.
func (s *SettingsClient) SetNotificationSettings(ctx context.Context, settings NotificationSettings) (*NotificationSettings, error) {
	data, err := s.c.do(ctx, "/settings/notifications", RequestOptions{
		Method: http.MethodPut,
		Body:   settings,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[NotificationSettings](data)
}
