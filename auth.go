package caresync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

const credentialKey = "credentials"

// credentialStore holds the session token pair in memory for synchronous
// per-request header construction, mirrored into the durable store so a
// restarted process keeps its session.
type credentialStore struct {
	store Store
	log   *zap.Logger

	mu   sync.RWMutex
	cred Credential
}

func newCredentialStore(store Store, log *zap.Logger) *credentialStore {
	return &credentialStore{store: store, log: log}
}

func (s *credentialStore) load(ctx context.Context) {
	data, err := s.store.Get(ctx, nsAuth, credentialKey)
	if err != nil {
		return
	}
	var cred Credential
	if json.Unmarshal(data, &cred) != nil {
		return
	}
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
}

func (s *credentialStore) access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.AccessToken
}

func (s *credentialStore) refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.RefreshToken
}

func (s *credentialStore) current() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// set replaces the credential. The durable mirror is best-effort: a storage
// failure must not fail the login or refresh that produced the tokens.
func (s *credentialStore) set(ctx context.Context, cred Credential) {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	data, _ := json.Marshal(cred)
	if err := s.store.Set(ctx, nsAuth, credentialKey, data); err != nil {
		s.log.Warn("failed to persist credentials", zap.Error(err))
	}
}

func (s *credentialStore) clear(ctx context.Context) {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()

	if err := s.store.Remove(ctx, nsAuth, credentialKey); err != nil {
		s.log.Warn("failed to clear stored credentials", zap.Error(err))
	}
}

// ============================================================================
// Token refresh coordinator
// ============================================================================

// refreshSession renews the access token using the stored refresh token.
// Concurrent callers share a single in-flight refresh; all of them receive
// the same result. Returns nil on any failure, leaving existing credentials
// untouched.
func (c *Client) refreshSession(ctx context.Context) *Credential {
	v, _, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.refreshOnce(ctx), nil
	})
	cred, _ := v.(*Credential)
	return cred
}

func (c *Client) refreshOnce(ctx context.Context) *Credential {
	refreshToken := c.creds.refresh()
	if refreshToken == "" {
		return nil
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+refreshEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("token refresh failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil || tokens.AccessToken == "" {
		c.log.Warn("invalid refresh response: missing access_token")
		return nil
	}

	cred := Credential{AccessToken: tokens.AccessToken, RefreshToken: refreshToken}
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	c.creds.set(ctx, cred)
	return &cred
}

// invalidateSession wipes stored credentials and notifies the host that the
// session is gone. Navigation (e.g. redirecting to a login surface) is the
// host's concern, not this layer's.
func (c *Client) invalidateSession(ctx context.Context) {
	c.creds.clear(ctx)
	for _, h := range c.state.sessionHandlers() {
		handler := h
		go func() {
			defer func() { _ = recover() }()
			handler()
		}()
	}
}

// OnSessionInvalidated registers a hook fired when credentials are wiped
// after an unrecoverable auth failure.
func (c *Client) OnSessionInvalidated(h func()) {
	c.state.onSessionInvalidated(h)
}

// ============================================================================
// Auth sub-client
// ============================================================================

// AuthClient handles login, logout, and account management.
type AuthClient struct{ c *Client }

// Login authenticates and stores the returned token pair.
func (a *AuthClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	data, err := a.c.do(ctx, "/auth/login", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return nil, err
	}
	tokens, err := decodeJSON[TokenResponse](data)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken != "" {
		a.c.creds.set(ctx, Credential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		})
	}
	return tokens, nil
}

// Logout ends the server session and clears local credentials regardless of
// the server's answer.
func (a *AuthClient) Logout(ctx context.Context) error {
	_, err := a.c.do(ctx, "/auth/logout", RequestOptions{Method: http.MethodPost})
	a.c.creds.clear(ctx)
	return err
}

// Me returns the current account.
func (a *AuthClient) Me(ctx context.Context) (*User, error) {
	data, err := a.c.do(ctx, "/auth/me", RequestOptions{})
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

// UpdateProfile patches profile fields on the current account.
func (a *AuthClient) UpdateProfile(ctx context.Context, updates map[string]any) (*User, error) {
	data, err := a.c.do(ctx, "/auth/me", RequestOptions{
		Method: http.MethodPatch,
		Body:   updates,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

// UpdateEmail changes the account email.
func (a *AuthClient) UpdateEmail(ctx context.Context, email, password string) error {
	_, err := a.c.do(ctx, "/auth/me/email", RequestOptions{
		Method: http.MethodPatch,
		Body:   map[string]string{"email": email, "password": password},
	})
	return err
}

// UpdatePassword changes the account password.
func (a *AuthClient) UpdatePassword(ctx context.Context, current, next string) error {
	_, err := a.c.do(ctx, "/auth/me/password", RequestOptions{
		Method: http.MethodPatch,
		Body:   map[string]string{"current_password": current, "new_password": next},
	})
	return err
}

// RefreshSession forces a token refresh. Returns nil when there is no usable
// session; it never returns an error.
func (a *AuthClient) RefreshSession(ctx context.Context) *Credential {
	return a.c.refreshSession(ctx)
}

// RequestPasswordReset starts the email reset flow. Public endpoint.
func (a *AuthClient) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := a.c.do(ctx, "/auth/password-reset/request", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email},
	})
	return err
}

// ConfirmPasswordReset completes the reset flow with the emailed token.
func (a *AuthClient) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := a.c.do(ctx, "/auth/password-reset/confirm", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"token": token, "new_password": newPassword},
	})
	return err
}

// Credential returns the current token pair, for host-side persistence.
func (a *AuthClient) Credential() Credential {
	return a.c.creds.current()
}

// SetCredential installs a token pair restored by the host (e.g. from a CLI
// config file).
func (a *AuthClient) SetCredential(ctx context.Context, cred Credential) {
	a.c.creds.set(ctx, cred)
}
