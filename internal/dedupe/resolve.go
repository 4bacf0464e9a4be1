package dedupe

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ResolveOptions control Resolve.
type ResolveOptions struct {
	// DryRun computes the report without touching the filesystem.
	DryRun bool
	// PruneEmptyDirs removes directories under Root that are empty, or
	// become empty once duplicates are removed. Root itself is kept.
	PruneEmptyDirs bool
	Root           string
	Logger         *slog.Logger
}

// Report describes what Resolve removed, or would remove in a dry run.
type Report struct {
	DryRun     bool     `json:"dry_run"`
	Groups     []Group  `json:"groups"`
	Removed    []string `json:"removed"`
	PrunedDirs []string `json:"pruned_dirs"`
}

// Resolve keeps the first path of every group and removes the rest. The
// report is computed in full before anything is removed, so a dry run and a
// real run over the same tree produce the same report.
func Resolve(fs billy.Filesystem, groups []Group, opts ResolveOptions) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{DryRun: opts.DryRun, Groups: groups}
	removed := make(map[string]bool)

	for i := range groups {
		for _, p := range groups[i].Duplicates() {
			if removed[p] {
				continue
			}

			removed[p] = true
			report.Removed = append(report.Removed, p)
		}
	}

	if opts.PruneEmptyDirs {
		dirs, err := emptyDirsAfter(fs, opts.Root, removed)
		if err != nil {
			return report, err
		}

		report.PrunedDirs = dirs
	}

	if opts.DryRun {
		for _, p := range report.Removed {
			logger.Info("would remove duplicate", slog.String("path", p))
		}

		for _, d := range report.PrunedDirs {
			logger.Info("would remove empty directory", slog.String("path", d))
		}

		return report, nil
	}

	var errs []error

	for _, p := range report.Removed {
		if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", p, err))
			continue
		}

		logger.Info("removed duplicate", slog.String("path", p))
	}

	for _, d := range report.PrunedDirs {
		if err := fs.Remove(d); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing directory %s: %w", d, err))
			continue
		}

		logger.Debug("removed empty directory", slog.String("path", d))
	}

	return report, errors.Join(errs...)
}

// emptyDirsAfter lists, deepest first, the directories under root that are
// empty once every path in removed is gone.
func emptyDirsAfter(fs billy.Filesystem, root string, removed map[string]bool) ([]string, error) {
	var dirs []string

	err := util.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	gone := make(map[string]bool, len(removed))
	for p := range removed {
		gone[filepath.Clean(p)] = true
	}

	var pruned []string

	// Walk order is lexical pre-order, so reversing it visits children
	// before their parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := fs.ReadDir(dirs[i])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dirs[i], err)
		}

		empty := true

		for _, e := range entries {
			if !gone[filepath.Join(dirs[i], e.Name())] {
				empty = false
				break
			}
		}

		if empty {
			gone[filepath.Clean(dirs[i])] = true
			pruned = append(pruned, dirs[i])
		}
	}

	return pruned, nil
}
