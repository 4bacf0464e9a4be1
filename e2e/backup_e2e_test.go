//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/testutil"
)

// Environment read by the live tests, besides the client credentials the
// binary itself reads.
const (
	envTestName = "ONEDRIVE_BACKUP_TEST_NAME"
	envTestUser = "ONEDRIVE_BACKUP_TEST_USER"
)

var (
	binaryPath string
	backupName string
	backupUser string
)

// TestMain builds the binary, isolates HOME, and installs the refresh token
// saved under .testdata/<name>.refresh-token so no browser sign-in is needed.
func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	env := testutil.RequireEnv(envTestName, envTestUser, config.EnvClientID, config.EnvClientSecret)
	backupName = env[envTestName]
	backupUser = env[envTestUser]

	tmpDir, err := os.MkdirTemp("", "onedrive-backup-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "onedrive-backup")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	build.Dir = root
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	home := filepath.Join(tmpDir, "home")
	os.Setenv("HOME", home)
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	os.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))

	token := config.SanitizeAccount(backupName) + ".refresh-token"
	testutil.CopyFile(filepath.Join(root, ".testdata", token), config.TokenPath(backupName), 0o600)

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// runJSON runs the binary with --json and decodes stdout into out. Exit
// status 1 with a decodable summary is accepted: it means some items were
// not placed, which depends on the account's contents.
func runJSON(t *testing.T, out any, args ...string) {
	t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--json"}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var exitErr *exec.ExitError
	if runErr != nil && !(errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1) {
		t.Fatalf("%v failed: %v\nstderr: %s", args, runErr, stderr.String())
	}

	require.NoError(t, json.Unmarshal(stdout.Bytes(), out), "stdout: %s\nstderr: %s", stdout.String(), stderr.String())
}

type summary struct {
	User       string `json:"user"`
	Listed     int    `json:"listed"`
	Scheduled  int    `json:"scheduled"`
	Existing   int    `json:"existing"`
	Downloaded int    `json:"downloaded"`
	Failed     int    `json:"failed"`
}

func TestBackupE2E_SecondRunDownloadsNothing(t *testing.T) {
	out := t.TempDir()

	var first summary
	runJSON(t, &first, "backup", backupName, backupUser, out)

	assert.Equal(t, backupUser, first.User)
	assert.Zero(t, first.Failed)
	assert.Equal(t, first.Scheduled, first.Downloaded)

	var second summary
	runJSON(t, &second, "backup", backupName, backupUser, out)

	assert.Equal(t, first.Listed, second.Listed)
	assert.Zero(t, second.Scheduled)
	assert.Zero(t, second.Downloaded)
	assert.Equal(t, first.Existing+first.Downloaded, second.Existing)

	_, err := os.Stat(filepath.Join(out, ".staging"))
	assert.ErrorIs(t, err, os.ErrNotExist, "staging area is removed after a clean run")
}

func TestBackupE2E_WrongUserAborts(t *testing.T) {
	cmd := exec.Command(binaryPath, "-q", "backup", backupName, "definitely not "+backupUser, t.TempDir())

	output, err := cmd.CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(output), "does not match")
}

func TestBackupE2E_DryRunDedupeAfterBackup(t *testing.T) {
	out := t.TempDir()

	var sum summary
	runJSON(t, &sum, "backup", backupName, backupUser, out)

	var report struct {
		DryRun  bool     `json:"dry_run"`
		Removed []string `json:"removed"`
	}
	runJSON(t, &report, "remove-duplicates", "--dry-run", out)

	assert.True(t, report.DryRun)
}
