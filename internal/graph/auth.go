package graph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/onedrive-backup/internal/tokenfile"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// AuthorizeOptions configures Authorize.
type AuthorizeOptions struct {
	Credentials Credentials

	// TokenPath is where the refresh token is persisted.
	TokenPath string

	// Force skips the persisted token and always runs the interactive flow.
	Force bool

	// CertFile and KeyFile hold the PEM material for the loopback listener.
	// KeyFile defaults to CertFile.
	CertFile string
	KeyFile  string

	// CallbackTimeout bounds the wait for the browser; zero means
	// DefaultCallbackTimeout.
	CallbackTimeout time.Duration

	// Endpoint overrides the authorization server. Zero selects Microsoft.
	Endpoint oauth2.Endpoint

	// OpenURL launches a browser. nil uses the platform default.
	OpenURL func(string) error

	// Out receives the authorization URL when the browser cannot be opened.
	// nil means stderr.
	Out io.Writer
}

// Authorize returns a TokenManager for the account whose refresh token lives
// at opts.TokenPath. A persisted token is reused unless opts.Force is set;
// otherwise the interactive authorization-code flow runs and its refresh
// token is persisted once.
//
// ctx is retained by the TokenManager for refreshes and must outlive it.
func Authorize(ctx context.Context, opts AuthorizeOptions, logger *slog.Logger) (*TokenManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Credentials.OAuthConfig(opts.Endpoint)

	if !opts.Force {
		refresh, err := tokenfile.Load(opts.TokenPath)
		if err != nil {
			return nil, fmt.Errorf("graph: loading refresh token: %w", err)
		}

		if refresh != "" {
			logger.Info("using persisted refresh token", slog.String("path", opts.TokenPath))
			return NewTokenManager(ctx, cfg, refresh, logger), nil
		}
	}

	tok, err := authCodeFlow(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	if saveErr := tokenfile.Save(opts.TokenPath, tok.RefreshToken); saveErr != nil {
		return nil, fmt.Errorf("graph: saving refresh token: %w", saveErr)
	}

	logger.Info("authorization successful, refresh token saved",
		slog.String("path", opts.TokenPath),
	)

	m := NewTokenManager(ctx, cfg, tok.RefreshToken, logger)
	m.store(tok, time.Now())

	return m, nil
}

// authCodeFlow performs the interactive authorization code + PKCE flow:
//  1. Starts the loopback callback server on the redirect URI's port
//  2. Opens the browser to the authorization endpoint
//  3. Waits for the callback with the authorization code
//  4. Exchanges the code for tokens
func authCodeFlow(
	ctx context.Context,
	cfg *oauth2.Config,
	opts AuthorizeOptions,
	logger *slog.Logger,
) (*oauth2.Token, error) {
	logger.Info("starting browser authorization flow")

	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("graph: parsing redirect URI: %w", err)
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("graph: generating state token: %w", err)
	}

	cs, err := startCallbackServer(ctx, redirect, opts.CertFile, opts.KeyFile, state, logger)
	if err != nil {
		return nil, err
	}

	defer cs.shutdown()

	// With port 0 the redirect must name the port actually bound.
	if redirect.Port() == "0" {
		redirect.Host = net.JoinHostPort(redirect.Hostname(), strconv.Itoa(cs.port))
		cfg.RedirectURL = redirect.String()
	}

	verifier := oauth2.GenerateVerifier()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, opts.OpenURL, opts.Out, logger)

	code, err := cs.wait(ctx, opts.CallbackTimeout)
	if err != nil {
		return nil, err
	}

	logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("graph: token exchange failed: %w", err)
	}

	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	return tok, nil
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, out io.Writer, logger *slog.Logger) {
	if openURL == nil {
		openURL = browser.OpenURL
	}

	if out == nil {
		out = os.Stderr
	}

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(out, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Logout removes the persisted refresh token. It reports whether a token
// existed.
func Logout(tokenPath string, logger *slog.Logger) (bool, error) {
	removed, err := tokenfile.Remove(tokenPath)
	if err != nil {
		return false, fmt.Errorf("graph: removing refresh token: %w", err)
	}

	if removed {
		logger.Info("logout: removed refresh token", slog.String("path", tokenPath))
	} else {
		logger.Info("logout: no refresh token to remove", slog.String("path", tokenPath))
	}

	return removed, nil
}
