// Package dedupe finds files with identical content in a local tree and
// removes all but one copy of each.
//
// The pipeline is Scan (walk the tree), Hash (SHA-512 every file as a
// taskexec workload), GroupByHash or GroupByNameAndHash, and finally Resolve,
// which removes duplicates and prunes directories left empty. Resolve has a
// dry-run mode that reports exactly what a real run would do.
package dedupe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// File is a regular file found by Scan.
type File struct {
	Path string
	Size int64
}

// ScanOptions control which entries Scan reports.
type ScanOptions struct {
	// SkipEmpty leaves out zero-length files.
	SkipEmpty bool
	// Skip lists base names to leave out. Matching directories are not
	// descended into.
	Skip []string
}

// Scan walks root in lexical order and returns every regular file under it.
// Symlinks and other special files are ignored.
func Scan(fs billy.Filesystem, root string, opts ScanOptions) ([]File, error) {
	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = true
	}

	var files []File

	err := util.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != root && skip[info.Name()] {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() || skip[info.Name()] {
			return nil
		}

		if opts.SkipEmpty && info.Size() == 0 {
			return nil
		}

		files = append(files, File{Path: path, Size: info.Size()})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	return files, nil
}
