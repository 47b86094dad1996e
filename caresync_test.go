package caresync

import (
	"context"
	"testing"
	"time"
)

// testClient builds a Client against url with an in-memory store and a frozen
// clock the test can advance.
func testClient(t *testing.T, url string) (*Client, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(url)
	c.now = func() time.Time { return now }
	return c, &now
}

// goOnline flips the connectivity belief without kicking the background
// replay that SetOnline(true) starts, keeping sync passes deterministic.
func goOnline(c *Client) {
	c.state.mu.Lock()
	c.state.online = true
	c.state.mu.Unlock()
}

func TestNewDefaults(t *testing.T) {
	c := New("https://api.example.com/")

	if c.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if !c.Online() {
		t.Error("new client should start online")
	}
	if got := c.Status(context.Background()).Status; got != StatusSynced {
		t.Errorf("status = %q, want %q", got, StatusSynced)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
	if c.httpClient.Jar == nil {
		t.Error("default transport should carry a cookie jar")
	}
}

func TestNewTempID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := newTempID(now)

	if !isTempID(id) {
		t.Fatalf("generated id %q not recognized as temporary", id)
	}
	if len(id) != len("temp_")+13+1+9 {
		t.Errorf("unexpected id shape: %q", id)
	}
	if id == newTempID(now) {
		t.Error("two ids from the same instant should differ")
	}
}
