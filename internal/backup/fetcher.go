package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
	"github.com/tonimelisma/onedrive-backup/pkg/quickxorhash"
)

const (
	// StagingDir holds in-flight downloads at the root of the output tree.
	StagingDir = ".staging"

	chunkSize  = 32 * 1024
	tmpSuffix  = ".tmp"
	dirPerms   = 0o755
	stagedExt  = ".partial"
	phaseFetch = "downloading"
)

// Fetch errors.
var (
	ErrHashMismatch = errors.New("backup: content hash mismatch")
	ErrSizeMismatch = errors.New("backup: content length mismatch")
)

// Downloader opens a content stream for a pre-authenticated URL.
type Downloader interface {
	OpenDownload(ctx context.Context, url string) (*graph.Download, error)
}

// TimesFunc sets the modification time of a file on the output filesystem.
type TimesFunc func(name string, mtime time.Time) error

// OSTimes returns a TimesFunc for an osfs filesystem rooted at root.
func OSTimes(root string) TimesFunc {
	return func(name string, mtime time.Time) error {
		return os.Chtimes(filepath.Join(root, filepath.FromSlash(name)), mtime, mtime)
	}
}

// Fetcher downloads scheduled placements and commits them into the output
// filesystem.
type Fetcher struct {
	dl     Downloader
	fs     billy.Filesystem
	times  TimesFunc
	logger *slog.Logger

	// mkdirMu serializes directory creation between concurrent commits.
	mkdirMu sync.Mutex
}

// NewFetcher creates a Fetcher writing into fs. When times is nil the
// modification time is set only if fs implements billy.Change.
func NewFetcher(dl Downloader, fs billy.Filesystem, times TimesFunc, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	if times == nil {
		if ch, ok := fs.(billy.Change); ok {
			times = func(name string, mtime time.Time) error {
				return ch.Chtimes(name, mtime, mtime)
			}
		}
	}

	return &Fetcher{dl: dl, fs: fs, times: times, logger: logger}
}

// Tasks turns placements into executor tasks weighted by remote size.
func Tasks(placements []Placement) []taskexec.Task[Placement] {
	tasks := make([]taskexec.Task[Placement], len(placements))

	for i := range placements {
		tasks[i] = taskexec.Task[Placement]{
			Label:   placements[i].Path,
			Context: placements[i],
			Weight:  placements[i].Item.Size,
		}
	}

	return tasks
}

// Prepare opens the download stream. The task weight becomes the content
// length, or the remote size when the server does not send one.
func (f *Fetcher) Prepare(
	ctx context.Context, task taskexec.Task[Placement], status *taskexec.Status,
) (int64, taskexec.ExecuteFunc[int64], error) {
	p := task.Context

	status.SetMessage("connecting")

	dl, err := f.dl.OpenDownload(ctx, p.Item.DownloadURL)
	if err != nil {
		return 0, nil, fmt.Errorf("opening download: %w", err)
	}

	weight := dl.Size
	if weight < 0 {
		weight = p.Item.Size
	}

	return weight, func(ctx context.Context, status *taskexec.Status) (int64, error) {
		return f.execute(ctx, p, dl, status)
	}, nil
}

func (f *Fetcher) execute(ctx context.Context, p Placement, dl *graph.Download, status *taskexec.Status) (int64, error) {
	defer dl.Body.Close()

	staged, n, err := f.stage(ctx, p, dl, status)
	if err != nil {
		return n, err
	}

	if err := f.commit(staged, p.Path); err != nil {
		f.removeQuietly(staged)
		return n, err
	}

	if f.times != nil {
		if err := f.times(p.Path, p.Item.CreatedAt); err != nil {
			f.logger.Warn("failed to set modification time",
				slog.String("path", p.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	f.logger.Debug("download complete",
		slog.String("path", p.Path),
		slog.Int64("size", n),
	)

	return n, nil
}

// stage streams the body into a uniquely named file in the staging
// directory and verifies it. On failure the staged file is removed.
func (f *Fetcher) stage(ctx context.Context, p Placement, dl *graph.Download, status *taskexec.Status) (string, int64, error) {
	if err := f.ensureDir(StagingDir); err != nil {
		return "", 0, err
	}

	staged := path.Join(StagingDir, uuid.NewString()+stagedExt)

	out, err := f.fs.Create(staged)
	if err != nil {
		return "", 0, fmt.Errorf("creating staging file: %w", err)
	}

	h := quickxorhash.New()
	n, err := copyChunks(ctx, io.MultiWriter(out, h), dl.Body, status)

	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing staging file: %w", closeErr)
	}

	if err == nil && dl.Size >= 0 && n != dl.Size {
		err = fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, n, dl.Size)
	}

	if err == nil && p.Item.QuickXorHash != "" {
		if got := quickxorhash.Encode(h.Sum(nil)); got != p.Item.QuickXorHash {
			err = fmt.Errorf("%w: local %s, remote %s", ErrHashMismatch, got, p.Item.QuickXorHash)
		}
	}

	if err != nil {
		f.removeQuietly(staged)
		return "", n, err
	}

	return staged, n, nil
}

// copyChunks copies src to dst in fixed-size chunks, reporting cumulative
// bytes after each one.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, status *taskexec.Status) (int64, error) {
	buf := make([]byte, chunkSize)

	var total int64

	status.SetMessage(phaseFetch)

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("writing content: %w", err)
			}

			total += int64(n)
			status.Report(total, "")
		}

		if errors.Is(readErr, io.EOF) {
			return total, nil
		}

		if readErr != nil {
			return total, fmt.Errorf("reading content: %w", readErr)
		}
	}
}

// commit moves a verified staged file to dest in two hops so a crash never
// leaves a truncated file under the final name.
func (f *Fetcher) commit(staged, dest string) error {
	if err := f.ensureDir(path.Dir(dest)); err != nil {
		return err
	}

	tmp := dest + tmpSuffix

	if err := f.removeIfExists(tmp); err != nil {
		return fmt.Errorf("removing stale %s: %w", tmp, err)
	}

	if err := f.fs.Rename(staged, tmp); err != nil {
		return fmt.Errorf("moving staged file to %s: %w", tmp, err)
	}

	if err := f.removeIfExists(dest); err != nil {
		f.removeQuietly(tmp)
		return fmt.Errorf("replacing %s: %w", dest, err)
	}

	if err := f.fs.Rename(tmp, dest); err != nil {
		f.removeQuietly(tmp)
		return fmt.Errorf("renaming %s into place: %w", tmp, err)
	}

	return nil
}

// ensureDir creates dir if it is missing. The unlocked check keeps the
// common case free of contention.
func (f *Fetcher) ensureDir(dir string) error {
	if f.isDir(dir) {
		return nil
	}

	f.mkdirMu.Lock()
	defer f.mkdirMu.Unlock()

	if f.isDir(dir) {
		return nil
	}

	if err := f.fs.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	return nil
}

func (f *Fetcher) isDir(dir string) bool {
	info, err := f.fs.Stat(dir)
	return err == nil && info.IsDir()
}

func (f *Fetcher) removeIfExists(name string) error {
	err := f.fs.Remove(name)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

func (f *Fetcher) removeQuietly(name string) {
	if err := f.removeIfExists(name); err != nil {
		f.logger.Warn("failed to remove temporary file",
			slog.String("path", name),
			slog.String("error", err.Error()),
		)
	}
}

// Cleanup removes the staging directory if nothing is left in it.
func (f *Fetcher) Cleanup() {
	entries, err := f.fs.ReadDir(StagingDir)
	if err != nil || len(entries) > 0 {
		return
	}

	if err := f.fs.Remove(StagingDir); err != nil {
		f.logger.Debug("staging directory not removed",
			slog.String("error", err.Error()),
		)
	}
}
