package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPage_DecodesItems(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"value": [
				{"id": "f1", "name": "IMG_0001.JPG", "size": 1234,
				 "createdDateTime": "2021-03-04T05:06:07Z",
				 "file": {"mimeType": "image/jpeg", "hashes": {"quickXorHash": "abc="}},
				 "image": {"width": 10, "height": 10},
				 "@microsoft.graph.downloadUrl": "https://dl.example/f1?tempauth=t"},
				{"id": "f2", "name": "clip.mp4", "size": 99,
				 "createdDateTime": "2020-12-31T23:59:59Z",
				 "file": {"mimeType": "video/mp4"}, "video": {}, "image": {}},
				{"id": "d1", "name": "2019", "createdDateTime": "2019-01-01T00:00:00Z",
				 "folder": {"childCount": 3}}
			],
			"@odata.nextLink": "%s/me/drive/items/d0/children?$skiptoken=next"
		}`, "http://"+r.Host)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	page, err := client.ListPage(context.Background(), SpecialFolderPath("cameraroll"))
	require.NoError(t, err)

	assert.Equal(t, "/me/drive/special/cameraroll/children?$top=200", gotPath)
	require.Len(t, page.Items, 3)

	img := page.Items[0]
	assert.Equal(t, KindFile, img.Kind)
	assert.Equal(t, MediaImage, img.Media)
	assert.Equal(t, "abc=", img.QuickXorHash)
	assert.Equal(t, int64(1234), img.Size)
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), img.CreatedAt)
	assert.Equal(t, "https://dl.example/f1?tempauth=t", img.DownloadURL)

	assert.Equal(t, MediaVideo, page.Items[1].Media)

	dir := page.Items[2]
	assert.True(t, dir.IsFolder())
	assert.Equal(t, MediaNone, dir.Media)

	assert.Equal(t, "/me/drive/items/d0/children?$skiptoken=next", page.NextLink)
}

func TestListPage_LastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	page, err := client.ListPage(context.Background(), ChildrenPath("x"))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextLink)
}

func TestListPage_UnknownItemKind(t *testing.T) {
	for name, body := range map[string]string{
		"no facet": `{"value": [{"id": "x", "name": "mystery"}]}`,
		"package":  `{"value": [{"id": "x", "name": "Notebook", "package": {"type": "oneNote"}, "folder": {}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.ListPage(context.Background(), ChildrenPath("x"))
			require.ErrorIs(t, err, ErrUnknownItemKind)
		})
	}
}

func TestListPage_ForeignNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value": [], "@odata.nextLink": "https://evil.example/next"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListPage(context.Background(), ChildrenPath("x"))
	require.Error(t, err)
}

func TestListPage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListPage(context.Background(), ChildrenPath("x"))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestParseTimestamp_InvalidIsZero(t *testing.T) {
	logger := newTestClient(t, DefaultBaseURL).logger

	assert.True(t, parseTimestamp("", "id", logger).IsZero())
	assert.True(t, parseTimestamp("yesterday", "id", logger).IsZero())
	assert.True(t, parseTimestamp("2200-01-01T00:00:00Z", "id", logger).IsZero())
	assert.False(t, parseTimestamp("2022-07-08T09:10:11Z", "id", logger).IsZero())
}

func TestPathBuilders(t *testing.T) {
	assert.Equal(t, "/me/drive/special/cameraroll/children?$top=200", SpecialFolderPath("cameraroll"))
	assert.Equal(t, "/me/drive/items/ABC%21123/children?$top=200", ChildrenPath("ABC!123"))
}

func TestKindAndMediaStrings(t *testing.T) {
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "folder", KindFolder.String())
	assert.Equal(t, "image", MediaImage.String())
	assert.Equal(t, "video", MediaVideo.String())
	assert.Equal(t, "none", MediaNone.String())
}
