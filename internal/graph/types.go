package graph

import "time"

// ItemKind distinguishes files from folders. Anything else the API returns
// (packages, deleted tombstones, remote items) is rejected at decode time.
type ItemKind int

const (
	KindFile ItemKind = iota
	KindFolder
)

func (k ItemKind) String() string {
	if k == KindFolder {
		return "folder"
	}

	return "file"
}

// MediaKind is the media marker attached by OneDrive to a file.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
)

func (m MediaKind) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaNone:
		return "none"
	default:
		return "unknown"
	}
}

// Item is a OneDrive drive item normalized from the Graph API response.
// Callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	Kind         ItemKind
	Media        MediaKind
	Size         int64
	QuickXorHash string    // base64-encoded, empty when the API omits it
	CreatedAt    time.Time // zero when the API value is missing or invalid
	DownloadURL  string    // pre-authenticated, ephemeral; NEVER log
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// User is the authenticated user's profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Page is one page of a children listing. NextLink is the path (relative to
// the client's base URL) of the following page, or empty on the last page.
type Page struct {
	Items    []Item
	NextLink string
}
