package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

// cameraRollRemote lists a small camera roll: two pictures, a video in a
// subfolder, a thumbnail sidecar, and an unrecognized file.
func cameraRollRemote() *fakeRemote {
	remote := newFakeRemote()

	remote.pages[graph.SpecialFolderPath("cameraroll")] = graph.Page{
		Items: []graph.Item{
			remote.addFile("p1", "IMG_0001.jpg", graph.MediaImage, []byte("picture one")),
			remote.addFile("p2", "IMG_0002.HEIC", graph.MediaNone, []byte("picture two")),
			remote.addFile("t1", "MOV_0001.thm", graph.MediaNone, []byte("thumb")),
			remote.addFile("x1", "notes.txt", graph.MediaNone, []byte("text")),
			folder("sub", "2021"),
		},
	}
	remote.pages[graph.ChildrenPath("sub")] = graph.Page{
		Items: []graph.Item{remote.addFile("v1", "MOV_0001.mp4", graph.MediaVideo, []byte("video bytes"))},
	}

	return remote
}

func runnerOptions() Options {
	return Options{
		Name:          "Phone",
		ExpectedUser:  "Jane Doe",
		ExpectedEmail: "JANE@example.com",
		Roots:         DefaultRoots([]string{"cameraroll"}),
		Rules:         testRules(),
		Ignore:        IgnoreSet([]string{".thm"}),
	}
}

func TestRunner_BackupIsIdempotent(t *testing.T) {
	fs := memfs.New()
	remote := cameraRollRemote()
	runner := NewRunner(remote, fs, taskexec.NewExecutor(1, nil, testLogger(t)), testLogger(t))

	sum, err := runner.Run(context.Background(), runnerOptions())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Listed)
	assert.Equal(t, 3, sum.Scheduled)
	assert.Equal(t, 3, sum.Downloaded)
	assert.Equal(t, 1, sum.Ignored)
	assert.Equal(t, 1, sum.PlanErrors)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, int64(len("picture one")+len("picture two")+len("video bytes")), sum.Bytes)
	assert.False(t, sum.OK())
	require.Len(t, sum.Failures, 1)
	assert.ErrorIs(t, sum.Failures[0], ErrUnrecognizedType)

	got, err := util.ReadFile(fs, "My Videos/2021/03/2021.03.07 - Phone/MOV_0001.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(got))

	_, err = fs.Stat("My Pictures/2021/03/2021.03.07 - Phone/IMG_0002.HEIC")
	require.NoError(t, err)

	again, err := runner.Run(context.Background(), runnerOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scheduled)
	assert.Equal(t, 3, again.Existing)
	assert.Equal(t, 3, remote.downloads, "second run downloads nothing")
}

func TestRunner_IdentityMismatchAborts(t *testing.T) {
	fs := memfs.New()
	remote := cameraRollRemote()
	runner := NewRunner(remote, fs, taskexec.NewExecutor(1, nil, testLogger(t)), testLogger(t))

	opts := runnerOptions()
	opts.ExpectedUser = "Someone Else"

	sum, err := runner.Run(context.Background(), opts)
	require.ErrorIs(t, err, graph.ErrIdentityMismatch)
	assert.Nil(t, sum)
	assert.Empty(t, remote.listed, "no listing after a failed identity check")
}

func TestRunner_ListingFailureAborts(t *testing.T) {
	fs := memfs.New()
	remote := cameraRollRemote()
	remote.listErrs[graph.ChildrenPath("sub")] = &graph.APIError{StatusCode: 403, Err: graph.ErrForbidden}

	runner := NewRunner(remote, fs, taskexec.NewExecutor(1, nil, testLogger(t)), testLogger(t))

	_, err := runner.Run(context.Background(), runnerOptions())
	require.ErrorIs(t, err, graph.ErrForbidden)
	assert.Zero(t, remote.downloads)
}

func TestRunner_ParallelOnDisk(t *testing.T) {
	dir := t.TempDir()
	fs := osfs.New(dir)
	remote := newFakeRemote()

	var items []graph.Item
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		items = append(items, remote.addFile(id, id+".jpg", graph.MediaImage, []byte("data-"+id)))
	}

	remote.pages[graph.SpecialFolderPath("cameraroll")] = graph.Page{Items: items}

	opts := runnerOptions()
	opts.Times = OSTimes(dir)

	runner := NewRunner(remote, fs, taskexec.NewExecutor(4, nil, testLogger(t)), testLogger(t))

	sum, err := runner.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, sum.OK())
	assert.Equal(t, 8, sum.Downloaded)

	target := filepath.Join(dir, "My Pictures", "2021", "03", "2021.03.07 - Phone", "e.jpg")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "data-e", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(testCreated), "mtime follows creation time")

	_, err = os.Stat(filepath.Join(dir, StagingDir))
	assert.True(t, os.IsNotExist(err))
}
