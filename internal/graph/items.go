package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// listChildrenPageSize is the $top value for children listings.
const listChildrenPageSize = 200

// Timestamps outside this range are treated as missing.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// ErrUnknownItemKind is returned when a listing contains an entry that is
// neither a file nor a folder.
var ErrUnknownItemKind = errors.New("graph: item is neither file nor folder")

// driveItemResponse mirrors the Graph API driveItem JSON. Unexported; callers
// use Item via toItem().
type driveItemResponse struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Size            int64        `json:"size"`
	CreatedDateTime string       `json:"createdDateTime"`
	File            *fileFacet   `json:"file"`
	Folder          *folderFacet `json:"folder"`
	Image           *struct{}    `json:"image"`
	Video           *struct{}    `json:"video"`
	Package         *struct{}    `json:"package"`
	DownloadURL     string       `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// listChildrenResponse is one page of GET .../children.
type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a driveItem. Kind and media are resolved here once so
// nothing downstream inspects facets.
func (d *driveItemResponse) toItem(logger *slog.Logger) (Item, error) {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		DownloadURL: d.DownloadURL,
	}

	switch {
	case d.Package != nil:
		return Item{}, fmt.Errorf("%w: %q is a package", ErrUnknownItemKind, d.Name)
	case d.Folder != nil:
		item.Kind = KindFolder
	case d.File != nil:
		item.Kind = KindFile
	default:
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownItemKind, d.Name)
	}

	if item.Kind == KindFile {
		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
		}

		// A video facet wins: some clients tag videos with image metadata too.
		switch {
		case d.Video != nil:
			item.Media = MediaVideo
		case d.Image != nil:
			item.Media = MediaImage
		}
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, d.ID, logger)

	return item, nil
}

// parseTimestamp parses an RFC3339 timestamp. Missing, invalid, or
// out-of-range values yield the zero time and a warning.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty createdDateTime", slog.String("item_id", itemID))
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid createdDateTime",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("createdDateTime out of valid range",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

// SpecialFolderPath returns the children listing path of a special folder
// such as "cameraroll" or "photos".
func SpecialFolderPath(name string) string {
	return fmt.Sprintf("/me/drive/special/%s/children?$top=%d", url.PathEscape(name), listChildrenPageSize)
}

// ChildrenPath returns the children listing path of a folder by item ID.
func ChildrenPath(itemID string) string {
	return fmt.Sprintf("/me/drive/items/%s/children?$top=%d", url.PathEscape(itemID), listChildrenPageSize)
}

// ListPage fetches a single page of children at path (as produced by
// SpecialFolderPath, ChildrenPath, or a previous Page.NextLink).
func (c *Client) ListPage(ctx context.Context, path string) (Page, error) {
	resp, err := c.Do(ctx, http.MethodGet, path)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return Page{}, fmt.Errorf("graph: decoding children response: %w", err)
	}

	page := Page{Items: make([]Item, 0, len(lcr.Value))}

	for i := range lcr.Value {
		item, err := lcr.Value[i].toItem(c.logger)
		if err != nil {
			return Page{}, err
		}

		page.Items = append(page.Items, item)
	}

	if lcr.NextLink != "" {
		page.NextLink, err = c.stripBaseURL(lcr.NextLink)
		if err != nil {
			return Page{}, err
		}
	}

	c.logger.Debug("fetched children page",
		slog.Int("count", len(page.Items)),
		slog.Bool("more", page.NextLink != ""),
	)

	return page, nil
}
