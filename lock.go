package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// lockFileName sits at the top of a tree once a command has written into it.
// Dedupe scans skip it.
const lockFileName = ".onedrive-backup.lock"

const lockFilePermissions = 0o644

// lockDir takes an exclusive flock on dir's lock file and records our PID in
// it, so a backup and a duplicate removal never mutate the same tree at once.
// The returned release clears the PID and drops the lock. The file itself is
// never unlinked: a waiter may already hold it open, and removing it would
// let that waiter lock an orphaned inode while a third process creates and
// locks a fresh file at the same path.
func lockDir(dir string) (release func(), err error) {
	path := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if pid, readErr := readLockHolder(path); readErr == nil {
			return nil, fmt.Errorf("%s is in use by another onedrive-backup (PID %d)", dir, pid)
		}

		return nil, fmt.Errorf("%s is in use by another onedrive-backup (could not lock %s)", dir, path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		f.Truncate(0)
		f.Close()
	}, nil
}

// readLockHolder returns the PID recorded in a lock file.
func readLockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
