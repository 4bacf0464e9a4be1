package dedupe

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

const hashChunkSize = 8 * 1024

// HashRecord is the content hash of one file.
type HashRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Hash computes the SHA-512 of every file using exec, so the caller picks
// the concurrency (1 for spinning disks). Files that cannot be read are left
// out of the records and reported as errors; records keep input order.
func Hash(ctx context.Context, exec *taskexec.Executor, fs billy.Filesystem, files []File) ([]HashRecord, []error) {
	tasks := make([]taskexec.Task[File], len(files))
	for i := range files {
		tasks[i] = taskexec.Task[File]{Label: files[i].Path, Context: files[i], Weight: files[i].Size}
	}

	prepare := func(_ context.Context, task taskexec.Task[File], _ *taskexec.Status) (int64, taskexec.ExecuteFunc[HashRecord], error) {
		info, err := fs.Stat(task.Context.Path)
		if err != nil {
			return 0, nil, fmt.Errorf("stat: %w", err)
		}

		return info.Size(), func(ctx context.Context, status *taskexec.Status) (HashRecord, error) {
			return hashFile(ctx, fs, task.Context.Path, status)
		}, nil
	}

	results := taskexec.Run(ctx, exec, "hash", tasks, prepare)

	records := make([]HashRecord, 0, len(results))
	for i := range results {
		if results[i].Err == nil {
			records = append(records, results[i].Value)
		}
	}

	return records, taskexec.Errors(results)
}

func hashFile(ctx context.Context, fs billy.Filesystem, path string, status *taskexec.Status) (HashRecord, error) {
	f, err := fs.Open(path)
	if err != nil {
		return HashRecord{}, fmt.Errorf("opening: %w", err)
	}
	defer f.Close()

	h := sha512.New()
	buf := make([]byte, hashChunkSize)

	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return HashRecord{}, err
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
			status.Report(total, "")
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return HashRecord{}, fmt.Errorf("reading: %w", readErr)
		}
	}

	return HashRecord{Path: path, Hash: hex.EncodeToString(h.Sum(nil)), Size: total}, nil
}
