// Package caresync is the Go client SDK for the Care-Docs API.
//
// It is offline-first: reads fall back to a staleness-windowed local cache,
// writes made while disconnected are queued durably and replayed in order once
// connectivity returns, and photo uploads wait for their parent event to be
// confirmed by the server before going out.
//
// Example:
//
//	store, _ := caresync.OpenSQLiteStore(filepath.Join(dir, "caresync.db"))
//	client := caresync.New("https://caredocs.example.com/api",
//		caresync.WithStore(store))
//
//	event, _ := client.Events().Create(ctx, map[string]any{"type": "feeding"})
//	client.SyncPendingMutations(ctx)
package caresync

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheMaxAge is the staleness window for cached reads while
	// online. Offline, cached data never expires.
	DefaultCacheMaxAge = time.Hour

	// maxQueueRetries is how many failed replays a queued item survives
	// before delivery is abandoned.
	maxQueueRetries = 5

	refreshEndpoint = "/auth/refresh"
)

// Client is the session context: transport, credentials, durable store,
// queues, cache, and sync state. Construct one per running client and share
// it; all methods are safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	log         *zap.Logger
	store       Store
	now         func() time.Time
	cacheMaxAge time.Duration

	creds        *credentialStore
	refreshGroup singleflight.Group
	cache        *Cache
	queue        *MutationQueue
	photoQueue   *PhotoQueue

	state syncState

	auth          *AuthClient
	events        *EventsClient
	photos        *PhotosClient
	recipients    *RecipientsClient
	templates     *TemplatesClient
	medications   *MedicationsClient
	settings      *SettingsClient
	notifications *NotificationsClient
	feeds         *FeedsClient
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport. The caller is responsible
// for providing a cookie jar if cookie-based auth should keep working.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithStore sets the durable store. Defaults to an in-memory store, which
// loses queued work on process exit; production clients should pass a
// SQLiteStore.
func WithStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithLogger sets the logger used for best-effort failures. Defaults to a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCacheMaxAge overrides the online staleness window for cached reads.
func WithCacheMaxAge(d time.Duration) Option {
	return func(c *Client) { c.cacheMaxAge = d }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		log:         zap.NewNop(),
		store:       NewMemoryStore(),
		now:         time.Now,
		cacheMaxAge: DefaultCacheMaxAge,
	}
	c.state.online = true
	c.state.status = StatusSynced

	for _, opt := range opts {
		opt(c)
	}

	c.creds = newCredentialStore(c.store, c.log)
	c.creds.load(context.Background())

	c.cache = &Cache{
		store:  c.store,
		log:    c.log,
		maxAge: c.cacheMaxAge,
		online: c.Online,
		now:    func() time.Time { return c.now() },
	}
	c.queue = &MutationQueue{store: c.store, log: c.log, now: func() time.Time { return c.now() }}
	c.photoQueue = &PhotoQueue{store: c.store, log: c.log, now: func() time.Time { return c.now() }}

	c.auth = &AuthClient{c: c}
	c.events = &EventsClient{c: c}
	c.photos = &PhotosClient{c: c}
	c.recipients = &RecipientsClient{c: c}
	c.templates = &TemplatesClient{c: c}
	c.medications = &MedicationsClient{c: c}
	c.settings = &SettingsClient{c: c}
	c.notifications = &NotificationsClient{c: c}
	c.feeds = &FeedsClient{c: c}

	c.recomputeStatus(context.Background())
	return c
}

// Auth returns the auth sub-client.
func (c *Client) Auth() *AuthClient { return c.auth }

// Events returns the care-events sub-client.
func (c *Client) Events() *EventsClient { return c.events }

// Photos returns the photos sub-client.
func (c *Client) Photos() *PhotosClient { return c.photos }

// Recipients returns the care-recipients sub-client.
func (c *Client) Recipients() *RecipientsClient { return c.recipients }

// Templates returns the quick-meds and quick-feeds sub-client.
func (c *Client) Templates() *TemplatesClient { return c.templates }

// Medications returns the medications and reminders sub-client.
func (c *Client) Medications() *MedicationsClient { return c.medications }

// Settings returns the settings sub-client.
func (c *Client) Settings() *SettingsClient { return c.settings }

// Notifications returns the push-notifications sub-client.
func (c *Client) Notifications() *NotificationsClient { return c.notifications }

// Feeds returns the continuous-feed sub-client.
func (c *Client) Feeds() *FeedsClient { return c.feeds }

// Cache exposes the read cache, mainly for administrative clearing.
func (c *Client) Cache() *Cache { return c.cache }

// Queue exposes the pending mutation queue.
func (c *Client) Queue() *MutationQueue { return c.queue }

// PhotoQueue exposes the pending photo-upload queue.
func (c *Client) PhotoQueue() *PhotoQueue { return c.photoQueue }
