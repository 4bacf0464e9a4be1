package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// minTokenLifetime is the floor applied to the usable lifetime of an access
// token, so a very short expires_in does not cause a refresh per request.
const minTokenLifetime = 5 * time.Second

// ErrNoRefreshToken is returned when the token endpoint does not issue a
// refresh token (offline_access not granted).
var ErrNoRefreshToken = errors.New("graph: no refresh token in token response")

var defaultScopes = []string{
	"User.Read",
	"offline_access",
	"Files.Read.All",
}

// Credentials identify the registered application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// OAuthConfig builds the oauth2 configuration for these credentials against
// endpoint. A zero endpoint selects the Microsoft identity platform "common"
// tenant.
func (c Credentials) OAuthConfig(endpoint oauth2.Endpoint) *oauth2.Config {
	if endpoint.TokenURL == "" {
		endpoint = microsoft.AzureADEndpoint("common")
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       defaultScopes,
		Endpoint:     endpoint,
	}
}

// RefreshDeadline returns the instant after which an access token acquired at
// acquired with the given declared lifetime must no longer be used:
// acquired + max(5s, floor(0.9 × lifetime in whole seconds)).
func RefreshDeadline(acquired time.Time, lifetime time.Duration) time.Time {
	secs := int64(lifetime / time.Second)
	usable := time.Duration(secs*9/10) * time.Second

	return acquired.Add(max(minTokenLifetime, usable))
}

// TokenManager hands out access tokens, refreshing them with the refresh
// token once 90% of their declared lifetime has elapsed. It is safe for
// concurrent use and implements TokenSource.
//
// A refresh token rotated by the server replaces the in-memory one but is not
// written back to disk; the persisted token is only written at authorization.
type TokenManager struct {
	cfg    *oauth2.Config
	ctx    context.Context //nolint:containedctx // oauth2 refreshes need a context carrying the HTTP client
	logger *slog.Logger

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	deadline     time.Time

	nowFunc func() time.Time
}

// NewTokenManager creates a manager that refreshes with refreshToken. ctx is
// used for every refresh request and must outlive the manager; attach a
// custom *http.Client with oauth2.HTTPClient if needed.
func NewTokenManager(ctx context.Context, cfg *oauth2.Config, refreshToken string, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		cfg:          cfg,
		ctx:          ctx,
		logger:       logger,
		refreshToken: refreshToken,
		nowFunc:      time.Now,
	}
}

// Token returns a valid access token, refreshing first if the current one is
// missing or past its deadline.
func (m *TokenManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	if m.accessToken != "" && now.Before(m.deadline) {
		return m.accessToken, nil
	}

	m.logger.Debug("refreshing access token")

	tok, err := m.cfg.TokenSource(m.ctx, &oauth2.Token{RefreshToken: m.refreshToken}).Token()
	if err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("graph: refreshing access token: %w", err)
	}

	m.store(tok, now)

	return m.accessToken, nil
}

// store records tok as the current token. Callers hold mu or own m exclusively.
func (m *TokenManager) store(tok *oauth2.Token, acquired time.Time) {
	m.accessToken = tok.AccessToken

	if tok.RefreshToken != "" && tok.RefreshToken != m.refreshToken {
		m.logger.Debug("refresh token rotated by server")
		m.refreshToken = tok.RefreshToken
	}

	m.deadline = RefreshDeadline(acquired, tokenLifetime(tok))

	m.logger.Debug("access token acquired", slog.Time("use_until", m.deadline))
}

// tokenLifetime recovers expires_in from the absolute expiry oauth2 computed
// on receipt. Zero expiry means the server sent no lifetime.
func tokenLifetime(tok *oauth2.Token) time.Duration {
	if tok.Expiry.IsZero() {
		return 0
	}

	return time.Until(tok.Expiry).Round(time.Second)
}
