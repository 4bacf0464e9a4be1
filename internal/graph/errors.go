// Package graph is the Microsoft Graph side of onedrive-backup: an HTTP
// client with retry and error classification, the OAuth2 token lifecycle,
// the loopback authorization callback, and the handful of endpoints the
// backup needs (profile, children listings, content downloads).
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for failed requests. Match them with errors.Is; the concrete
// error is an *APIError carrying the status and request ID.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrServerError  = errors.New("graph: server error")
	ErrUnexpected   = errors.New("graph: unexpected status")
)

// statusSentinels covers the 4xx codes with a dedicated sentinel.
var statusSentinels = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusGone:            ErrGone,
	http.StatusTooManyRequests: ErrThrottled,
}

// statusBandwidthExceeded is SharePoint's 509 Bandwidth Limit Exceeded.
const statusBandwidthExceeded = 509

// retryableStatus lists the transient failures worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	statusBandwidthExceeded:        true,
}

// APIError is a non-2xx response that survived retries.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	if err, ok := statusSentinels[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return ErrUnexpected
}

func isRetryable(code int) bool {
	return retryableStatus[code]
}
