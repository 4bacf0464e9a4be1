package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/backup"
	"github.com/tonimelisma/onedrive-backup/internal/dedupe"
	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

// Dedupe command flags.
var (
	flagSSD    bool
	flagDryRun bool
	flagClean  bool
)

func newRemoveDuplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-duplicates <output-dir>",
		Short: "Remove files with identical content from a backup tree",
		Long: `OneDrive sometimes recreates the same file under different folders. This
hashes every file under <output-dir>, keeps the first copy of each content,
removes the rest, and prunes directories left empty.`,
		Args: cobra.ExactArgs(1),
		RunE: runRemoveDuplicates,
	}

	cmd.Flags().BoolVar(&flagSSD, "ssd", false, "hash files concurrently (for solid-state storage)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would be removed without removing anything")

	return cmd
}

func newFindDuplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find-duplicates <dir>",
		Short: "List files that share both name and content",
		Args:  cobra.ExactArgs(1),
		RunE:  runFindDuplicates,
	}

	cmd.Flags().BoolVar(&flagSSD, "ssd", false, "hash files concurrently (for solid-state storage)")
	cmd.Flags().BoolVar(&flagClean, "clean", false, "remove duplicates, keeping the first file found")

	return cmd
}

// hashLimit is 1 on spinning disks, where concurrent reads thrash the heads.
func hashLimit(ssd bool) int {
	if ssd {
		return taskexec.Unbounded
	}

	return 1
}

// hashTree scans and hashes every file under the root of fs. Any file that
// cannot be hashed fails the whole tree, so nothing is grouped or removed
// from a partial view.
func hashTree(cmd *cobra.Command, fs billy.Filesystem, opts dedupe.ScanOptions, logger *slog.Logger) ([]dedupe.HashRecord, error) {
	files, err := dedupe.Scan(fs, ".", opts)
	if err != nil {
		return nil, err
	}

	logger.Info("files found", slog.Int("count", len(files)))

	progress := newProgressObserver(os.Stderr, flagQuiet || flagJSON, true, logger)
	exec := taskexec.NewExecutor(hashLimit(resolvedCfg.Dedupe.SSD), progress, logger)

	ctx := shutdownContext(commandContext(cmd), logger)
	records, errs := dedupe.Hash(ctx, exec, fs, files)

	progress.Finish()

	for _, err := range errs {
		logger.Error("cannot hash file", slog.String("error", err.Error()))
	}

	if len(errs) > 0 {
		return records, fmt.Errorf("hashing: %d of %d files failed", len(errs), len(files))
	}

	return records, nil
}

func runRemoveDuplicates(cmd *cobra.Command, args []string) error {
	logger := buildLogger(os.Stderr)

	fs, err := openDir(args[0])
	if err != nil {
		return err
	}

	if !flagDryRun {
		release, err := lockDir(args[0])
		if err != nil {
			return err
		}
		defer release()
	}

	records, err := hashTree(cmd, fs, dedupe.ScanOptions{Skip: []string{backup.StagingDir, lockFileName}}, logger)
	if err != nil {
		return err
	}

	report, err := dedupe.Resolve(fs, dedupe.GroupByHash(records), dedupe.ResolveOptions{
		DryRun:         flagDryRun,
		PruneEmptyDirs: true,
		Root:           ".",
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	return printReport(os.Stdout, report)
}

func runFindDuplicates(cmd *cobra.Command, args []string) error {
	logger := buildLogger(os.Stderr)

	fs, err := openDir(args[0])
	if err != nil {
		return err
	}

	if flagClean {
		release, err := lockDir(args[0])
		if err != nil {
			return err
		}
		defer release()
	}

	records, err := hashTree(cmd, fs, dedupe.ScanOptions{SkipEmpty: true, Skip: []string{lockFileName}}, logger)
	if err != nil {
		return err
	}

	report, err := dedupe.Resolve(fs, dedupe.GroupByNameAndHash(records), dedupe.ResolveOptions{
		DryRun: !flagClean,
		Root:   ".",
		Logger: logger,
	})
	if err != nil {
		return err
	}

	return printReport(os.Stdout, report)
}

// openDir returns a filesystem rooted at dir, which must be an existing
// directory.
func openDir(dir string) (billy.Filesystem, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	return osfs.New(dir), nil
}

func printReport(w io.Writer, report *dedupe.Report) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if len(report.Groups) == 0 {
		statusf(flagQuiet, "No duplicates found.\n")
		return nil
	}

	for i := range report.Groups {
		g := &report.Groups[i]

		title := g.Name
		if title == "" {
			title = g.Keep()
		}

		fmt.Fprintf(w, "%d) %s\n", i+1, title)

		for _, p := range g.Paths {
			fmt.Fprintf(w, "  - %s\n", p)
		}

		fmt.Fprintln(w)
	}

	verb := "Removed"
	if report.DryRun {
		verb = "Would remove"
	}

	statusf(flagQuiet, "%s %d duplicate(s) and %d empty director(ies).\n",
		verb, len(report.Removed), len(report.PrunedDirs))

	return nil
}
