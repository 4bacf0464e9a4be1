package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer is a fake token endpoint. It records the refresh tokens it
// was presented and issues numbered access tokens.
type tokenServer struct {
	srv       *httptest.Server
	calls     atomic.Int32
	mu        sync.Mutex
	presented []string
	rotate    bool
	expiresIn int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{expiresIn: 3600}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		n := ts.calls.Add(1)

		ts.mu.Lock()
		ts.presented = append(ts.presented, r.PostForm.Get("refresh_token"))
		ts.mu.Unlock()

		resp := map[string]any{
			"access_token": "access-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   ts.expiresIn,
		}
		if ts.rotate {
			resp["refresh_token"] = "refresh-" + string(rune('0'+n))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.srv.Close)

	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return Credentials{ClientID: "cid", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:0/"}.
		OAuthConfig(oauth2.Endpoint{
			AuthURL:   ts.srv.URL + "/authorize",
			TokenURL:  ts.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		})
}

func TestRefreshDeadline(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		lifetime time.Duration
		want     time.Duration
	}{
		{3600 * time.Second, 3240 * time.Second},
		{10 * time.Second, 9 * time.Second},
		{5 * time.Second, 5 * time.Second},
		{0, 5 * time.Second},
		{3599*time.Second + 900*time.Millisecond, 3239 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, base.Add(tt.want), RefreshDeadline(base, tt.lifetime), "lifetime %s", tt.lifetime)
	}
}

func TestTokenManager_RefreshesAtNinetyPercent(t *testing.T) {
	ts := newTokenServer(t)

	m := NewTokenManager(context.Background(), ts.config(), "refresh-0", slog.Default())

	start := time.Now()
	now := start
	m.nowFunc = func() time.Time { return now }

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)

	now = start.Add(3239 * time.Second)
	tok, err = m.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, int32(1), ts.calls.Load())

	now = start.Add(3240 * time.Second)
	tok, err = m.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestTokenManager_ShortLifetimeFloor(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresIn = 1

	m := NewTokenManager(context.Background(), ts.config(), "refresh-0", slog.Default())

	start := time.Now()
	now := start
	m.nowFunc = func() time.Time { return now }

	_, err := m.Token()
	require.NoError(t, err)

	now = start.Add(4 * time.Second)
	_, err = m.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestTokenManager_RotatedRefreshTokenUsedInMemory(t *testing.T) {
	ts := newTokenServer(t)
	ts.rotate = true

	m := NewTokenManager(context.Background(), ts.config(), "refresh-0", slog.Default())

	start := time.Now()
	now := start
	m.nowFunc = func() time.Time { return now }

	_, err := m.Token()
	require.NoError(t, err)

	now = start.Add(time.Hour)
	_, err = m.Token()
	require.NoError(t, err)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	assert.Equal(t, []string{"refresh-0", "refresh-1"}, ts.presented)
}

func TestTokenManager_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ts := newTokenServer(t)

	m := NewTokenManager(context.Background(), ts.config(), "refresh-0", slog.Default())

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tok, err := m.Token()
			assert.NoError(t, err)
			assert.Equal(t, "access-1", tok)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestTokenManager_RefreshError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	cfg := Credentials{ClientID: "cid"}.OAuthConfig(oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams})
	m := NewTokenManager(context.Background(), cfg, "revoked", slog.Default())

	_, err := m.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestOAuthConfig_Defaults(t *testing.T) {
	cfg := Credentials{ClientID: "cid", ClientSecret: "s", RedirectURI: "https://localhost:8443"}.OAuthConfig(oauth2.Endpoint{})

	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "https://localhost:8443", cfg.RedirectURL)
	assert.Contains(t, cfg.Endpoint.TokenURL, "login.microsoftonline.com/common")
	assert.ElementsMatch(t, []string{"User.Read", "offline_access", "Files.Read.All"}, cfg.Scopes)
}
