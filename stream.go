package caresync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Stream payloads
// ============================================================================

// StreamEnvelope is the wire shape of one pushed event.
type StreamEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventChangedPayload accompanies event_created, event_updated, and
// event_deleted pushes.
type EventChangedPayload struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type,omitempty"`
	RecipientID string `json:"care_recipient_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
}

// PhotoUploadedPayload accompanies photo_uploaded pushes.
type PhotoUploadedPayload struct {
	PhotoID  string `json:"photo_id"`
	EventID  string `json:"event_id"`
	Filename string `json:"filename,omitempty"`
}

// ReminderDuePayload accompanies reminder_due pushes.
type ReminderDuePayload struct {
	ReminderID   string `json:"reminder_id"`
	MedicationID string `json:"medication_id,omitempty"`
	DueAt        string `json:"due_at,omitempty"`
}

// StreamEventHandler is the generic handler type for untyped pushes.
type StreamEventHandler func(eventType string, payload json.RawMessage)

// ============================================================================
// Configuration and state
// ============================================================================

// StreamConfig configures the push stream.
type StreamConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatTimeout     time.Duration
}

func (c *StreamConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 60 * time.Second
	}
}

// StreamState represents the connection state.
type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
	StateReconnecting StreamState = "reconnecting"
)

// ============================================================================
// Dispatcher
// ============================================================================

type streamDispatcher struct {
	mu             sync.RWMutex
	generic        map[string][]StreamEventHandler
	onEventChanged []func(kind string, p EventChangedPayload)
	onPhoto        []func(PhotoUploadedPayload)
	onReminderDue  []func(ReminderDuePayload)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
}

func newStreamDispatcher() *streamDispatcher {
	return &streamDispatcher{generic: make(map[string][]StreamEventHandler)}
}

func (d *streamDispatcher) dispatch(env StreamEnvelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch env.Type {
	case "event_created", "event_updated", "event_deleted":
		var p EventChangedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onEventChanged {
				go h(env.Type, p)
			}
		}
	case "photo_uploaded":
		var p PhotoUploadedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onPhoto {
				go h(p)
			}
		}
	case "reminder_due":
		var p ReminderDuePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onReminderDue {
				go h(p)
			}
		}
	}

	for _, h := range d.generic[env.Type] {
		handler := h // capture
		go handler(env.Type, env.Payload)
	}
}

func (d *streamDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *streamDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (d *streamDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// ============================================================================
// Reconnect backoff
// ============================================================================

// A connection that stayed up this long is considered healthy again and the
// next drop starts the ladder from the base delay.
const steadyConnWindow = time.Minute

type retryBackoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
	upSince     time.Time
}

func newRetryBackoff(config *StreamConfig) *retryBackoff {
	return &retryBackoff{
		base:        config.ReconnectBaseDelay,
		max:         config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (b *retryBackoff) allow() bool {
	return b.maxAttempts == 0 || b.attempt < b.maxAttempts
}

func (b *retryBackoff) noteConnected() {
	b.upSince = time.Now()
}

// next doubles the delay per consecutive failure, up to the cap, with up to
// half a base delay of jitter so a fleet of clients does not thunder back in
// step.
func (b *retryBackoff) next() time.Duration {
	if !b.upSince.IsZero() && time.Since(b.upSince) > steadyConnWindow {
		b.attempt = 0
	}
	delay := b.base << uint(b.attempt)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	delay += time.Duration(rand.Int63n(int64(b.base)/2 + 1))
	if delay > b.max {
		delay = b.max
	}
	b.attempt++
	return delay
}

func (b *retryBackoff) reset() {
	b.attempt = 0
	b.upSince = time.Time{}
}

// ============================================================================
// StreamClient
// ============================================================================

// StreamTransport selects how pushes are delivered.
type StreamTransport string

const (
	TransportSSE StreamTransport = "sse"
	TransportWS  StreamTransport = "ws"
)

// StreamClient receives server pushes about care events over SSE or
// WebSocket, with auto-reconnect and a heartbeat watchdog. When wired to a
// Client it also drives the connectivity model: connecting marks the client
// online, losing the stream marks it offline.
type StreamClient struct {
	c         *Client
	transport StreamTransport
	config    *StreamConfig
	log       *zap.Logger

	mu               sync.Mutex
	state            StreamState
	intentionalClose bool
	conn             *websocket.Conn
	cancelFn         context.CancelFunc
	lastDataTime     time.Time

	dispatcher *streamDispatcher
	backoff    *retryBackoff
}

// NewStream returns a push stream bound to this client's base URL and
// session. A nil config uses the defaults with auto-reconnect enabled.
func (c *Client) NewStream(transport StreamTransport, config *StreamConfig) *StreamClient {
	if config == nil {
		config = &StreamConfig{AutoReconnect: true}
	}
	config.defaults()
	s := &StreamClient{
		c:          c,
		transport:  transport,
		config:     config,
		log:        c.log,
		state:      StateDisconnected,
		dispatcher: newStreamDispatcher(),
		backoff:    newRetryBackoff(config),
	}
	s.OnConnected(func() { c.SetOnline(true) })
	s.OnDisconnected(func(string) { c.SetOnline(false) })
	return s
}

// OnEventChanged registers a handler for event_created, event_updated, and
// event_deleted pushes. kind carries which of the three fired.
func (s *StreamClient) OnEventChanged(h func(kind string, p EventChangedPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onEventChanged = append(s.dispatcher.onEventChanged, h)
	s.dispatcher.mu.Unlock()
}

// OnPhotoUploaded registers a handler for photo_uploaded pushes.
func (s *StreamClient) OnPhotoUploaded(h func(PhotoUploadedPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onPhoto = append(s.dispatcher.onPhoto, h)
	s.dispatcher.mu.Unlock()
}

// OnReminderDue registers a handler for reminder_due pushes.
func (s *StreamClient) OnReminderDue(h func(ReminderDuePayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onReminderDue = append(s.dispatcher.onReminderDue, h)
	s.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (s *StreamClient) OnConnected(h func()) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onConnected = append(s.dispatcher.onConnected, h)
	s.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (s *StreamClient) OnDisconnected(h func(reason string)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onDisconnected = append(s.dispatcher.onDisconnected, h)
	s.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (s *StreamClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onReconnecting = append(s.dispatcher.onReconnecting, h)
	s.dispatcher.mu.Unlock()
}

// On registers a generic handler for an event type.
func (s *StreamClient) On(eventType string, h StreamEventHandler) {
	s.dispatcher.mu.Lock()
	s.dispatcher.generic[eventType] = append(s.dispatcher.generic[eventType], h)
	s.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (s *StreamClient) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the push stream.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.mu.Unlock()

	var err error
	if s.transport == TransportWS {
		err = s.connectWS(ctx)
	} else {
		err = s.connectSSE(ctx)
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect closes the stream without triggering reconnection.
func (s *StreamClient) Disconnect() error {
	s.mu.Lock()
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.backoff.reset()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	s.dispatcher.emitDisconnected("client disconnect")
	return nil
}

func (s *StreamClient) connectSSE(ctx context.Context) error {
	streamURL := s.c.baseURL + "/stream?token=" + s.c.creds.access()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream HTTP %d", resp.StatusCode)
	}

	s.mu.Lock()
	s.state = StateConnected
	s.lastDataTime = time.Now()
	s.mu.Unlock()
	s.backoff.noteConnected()
	s.log.Info("push stream connected", zap.String("transport", "sse"))
	s.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoopSSE(connCtx, resp)
	go s.heartbeatWatchdog(connCtx)
	return nil
}

func (s *StreamClient) connectWS(ctx context.Context) error {
	wsURL := strings.Replace(s.c.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + s.c.creds.access()

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: s.c.httpClient,
	})
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.lastDataTime = time.Now()
	s.mu.Unlock()
	s.backoff.noteConnected()
	s.log.Info("push stream connected", zap.String("transport", "ws"))
	s.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoopWS(connCtx, conn)
	go s.heartbeatWatchdog(connCtx)
	return nil
}

func (s *StreamClient) readLoopSSE(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()

		s.mu.Lock()
		s.lastDataTime = time.Now()
		s.mu.Unlock()

		// Comment lines (": keepalive") only reset the watchdog.
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			raw := strings.TrimPrefix(line, "data: ")
			var env StreamEnvelope
			if json.Unmarshal([]byte(raw), &env) == nil {
				s.dispatcher.dispatch(env)
			}
		}
	}

	s.streamLost(ctx, "stream ended")
}

func (s *StreamClient) readLoopWS(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			s.streamLost(ctx, err.Error())
			return
		}

		s.mu.Lock()
		s.lastDataTime = time.Now()
		s.mu.Unlock()

		var env StreamEnvelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		s.dispatcher.dispatch(env)
	}
}

// heartbeatWatchdog tears the connection down when the server goes silent
// past the heartbeat timeout, letting the reconnect loop take over.
func (s *StreamClient) heartbeatWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			silent := time.Since(s.lastDataTime) > s.config.HeartbeatTimeout
			state := s.state
			conn := s.conn
			cancel := s.cancelFn
			s.mu.Unlock()

			if state != StateConnected {
				return
			}
			if !silent {
				continue
			}

			s.log.Warn("push stream silent past heartbeat timeout")
			if conn != nil {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
			} else if cancel != nil {
				// SSE has no connection handle; cancel the read loop.
				cancel()
				s.streamLost(context.Background(), "heartbeat timeout")
			}
			return
		}
	}
}

func (s *StreamClient) streamLost(ctx context.Context, reason string) {
	s.mu.Lock()
	intentional := s.intentionalClose
	s.mu.Unlock()
	if intentional {
		return
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	s.log.Warn("push stream lost", zap.String("reason", reason))
	s.dispatcher.emitDisconnected(reason)

	if s.config.AutoReconnect && s.backoff.allow() {
		s.scheduleReconnect(ctx)
	}
}

func (s *StreamClient) scheduleReconnect(ctx context.Context) {
	delay := s.backoff.next()
	s.mu.Lock()
	s.state = StateReconnecting
	s.mu.Unlock()

	s.dispatcher.emitReconnecting(s.backoff.attempt, delay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := s.Connect(ctx); err != nil {
		if s.config.AutoReconnect && s.backoff.allow() {
			s.scheduleReconnect(ctx)
		} else {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()
		}
	}
}
