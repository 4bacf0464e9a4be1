package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrNoDownloadURL is returned when asked to download an item without a
// pre-authenticated URL.
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// tempauthParam is the query parameter OneDrive uses to embed a short-lived
// credential in download URLs.
const tempauthParam = "tempauth"

// Download is an open content stream. Size is the Content-Length, or -1
// when the server did not send one. The caller closes Body.
type Download struct {
	Body io.ReadCloser
	Size int64
}

// OpenDownload starts streaming the content at downloadURL. When the URL
// carries a tempauth parameter that value is the only bearer credential sent;
// otherwise the OAuth access token is used. Only the request/response cycle
// is retried. The URL is never logged because it embeds credentials.
func (c *Client) OpenDownload(ctx context.Context, downloadURL string) (*Download, error) {
	if downloadURL == "" {
		return nil, ErrNoDownloadURL
	}

	u, err := url.Parse(downloadURL)
	if err != nil {
		return nil, fmt.Errorf("graph: parsing download URL: %w", stripURL(err))
	}

	tempauth := u.Query().Get(tempauthParam)

	resp, err := c.doRetry(ctx, "download", func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
		if reqErr != nil {
			return nil, fmt.Errorf("graph: creating download request: %w", reqErr)
		}

		bearer := tempauth
		if bearer == "" {
			tok, tokErr := c.token.Token()
			if tokErr != nil {
				return nil, fmt.Errorf("graph: obtaining token: %w", tokErr)
			}

			bearer = tok
		}

		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("User-Agent", userAgent)

		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return &Download{Body: resp.Body, Size: resp.ContentLength}, nil
}
