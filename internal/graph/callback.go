package graph

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultCallbackTimeout bounds how long the authorization flow waits for the
// browser to hit the redirect URI.
const DefaultCallbackTimeout = 120 * time.Second

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// ErrMissingCertificate is returned when the redirect URI is https but no
// certificate was given for the listener.
var ErrMissingCertificate = errors.New("graph: https redirect URI requires a callback certificate")

// ErrCallbackTimeout is returned when no authorization response arrives in time.
var ErrCallbackTimeout = errors.New("graph: timed out waiting for authorization callback")

// callbackResult carries the authorization code or error from the handler.
type callbackResult struct {
	code string
	err  error
}

// callbackServer is the loopback listener that receives the OAuth2 redirect.
type callbackServer struct {
	srv     *http.Server
	port    int
	results chan callbackResult
	logger  *slog.Logger
}

// startCallbackServer binds 127.0.0.1 on the port of redirect (0 picks a free
// port) and serves the redirect path. TLS is used when certFile is set;
// keyFile defaults to certFile for a combined PEM.
func startCallbackServer(
	ctx context.Context,
	redirect *url.URL,
	certFile, keyFile, state string,
	logger *slog.Logger,
) (*callbackServer, error) {
	var tlsCfg *tls.Config

	if certFile != "" {
		if keyFile == "" {
			keyFile = certFile
		}

		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("graph: loading callback certificate: %w", err)
		}

		tlsCfg = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	} else if redirect.Scheme == "https" {
		return nil, ErrMissingCertificate
	}

	port, err := redirectPort(redirect)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("graph: binding callback listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, errors.New("graph: listener address is not TCP")
	}

	if tlsCfg != nil {
		listener = tls.NewListener(listener, tlsCfg)
	}

	cs := &callbackServer{
		port:    tcpAddr.Port,
		results: make(chan callbackResult, 1),
		logger:  logger,
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	cs.srv = &http.Server{
		Handler:           cs.handler(path, state),
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := cs.srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cs.post(callbackResult{err: fmt.Errorf("graph: callback server error: %w", serveErr)})
		}
	}()

	logger.Info("callback server listening",
		slog.Int("port", cs.port),
		slog.Bool("tls", tlsCfg != nil),
	)

	return cs, nil
}

// redirectPort returns the explicit port of redirect, or the scheme default.
func redirectPort(redirect *url.URL) (int, error) {
	if p := redirect.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("graph: invalid redirect URI port %q: %w", p, err)
		}

		return port, nil
	}

	if redirect.Scheme == "https" {
		return 443, nil
	}

	return 80, nil
}

// post delivers a result unless one is already pending. Only the first
// callback counts.
func (cs *callbackServer) post(r callbackResult) {
	select {
	case cs.results <- r:
	default:
	}
}

// handler answers the redirect path only. The first request on it produces
// the result; later requests are told the flow is already complete.
func (cs *callbackServer) handler(path, state string) http.Handler {
	var once sync.Once

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		handled := false

		once.Do(func() {
			handled = true
			cs.handleOAuthCallback(w, r, state)
		})

		if !handled {
			http.Error(w, "Authorization already processed", http.StatusConflict)
		}
	})
}

// handleOAuthCallback validates the state, extracts the code, and posts the result.
func (cs *callbackServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		cs.post(callbackResult{err: fmt.Errorf("graph: authorization failed: %s: %s", errParam, desc)})

		return
	}

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		cs.post(callbackResult{err: errors.New("graph: OAuth2 state mismatch")})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		cs.post(callbackResult{err: errors.New("graph: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	cs.post(callbackResult{code: code})
}

// wait blocks until the callback fires, the timeout elapses, or ctx is canceled.
func (cs *callbackServer) wait(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-cs.results:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrCallbackTimeout, timeout)
	case <-ctx.Done():
		return "", fmt.Errorf("graph: authorization canceled: %w", ctx.Err())
	}
}

// shutdown stops the server; errors are only logged since callers defer it.
func (cs *callbackServer) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := cs.srv.Shutdown(shutdownCtx); err != nil {
		cs.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}
