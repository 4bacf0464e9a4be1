package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/config"
)

// newRootCmd rebinds every flag to its default, so globals must be set
// after it returns, or passed as arguments to Execute.

// isolateDirs points config and token lookups at empty temp directories.
func isolateDirs(t *testing.T) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv(config.EnvConfig, "")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	return cmd.Execute()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.ElementsMatch(t, []string{"backup", "remove-duplicates", "find-duplicates", "logout"}, names)
}

func TestBuildLogger_Levels(t *testing.T) {
	newRootCmd()

	t.Cleanup(func() {
		resolvedCfg = nil
		flagVerbose, flagQuiet = false, false
	})

	resolvedCfg = config.DefaultConfig()
	resolvedCfg.Logging.LogLevel = "warn"

	var buf bytes.Buffer

	logger := buildLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	flagVerbose = true
	buf.Reset()
	buildLogger(&buf).Debug("debugging")
	assert.Contains(t, buf.String(), "debugging")

	flagVerbose, flagQuiet = false, true
	buf.Reset()
	buildLogger(&buf).Warn("muted")
	assert.Empty(t, buf.String())
}

func TestBuildLogger_JSON(t *testing.T) {
	newRootCmd()
	t.Cleanup(func() { resolvedCfg = nil })

	resolvedCfg = config.DefaultConfig()
	resolvedCfg.Logging.LogFormat = "json"

	var buf bytes.Buffer

	buildLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	isolateDirs(t)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, cfgPath, "[backup]\npictures_subdir = \"Photos\"\nparallel_downloads = 2\n")

	root := newRootCmd()
	backupCmd, _, err := root.Find([]string{"backup"})
	require.NoError(t, err)

	require.NoError(t, backupCmd.ParseFlags([]string{"--parallel", "5"}))
	flagConfigPath = cfgPath

	t.Cleanup(func() { resolvedCfg = nil })
	require.NoError(t, loadConfig(backupCmd))

	assert.Equal(t, "Photos", resolvedCfg.Backup.PicturesSubdir, "unset flag leaves the file value")
	assert.Equal(t, 5, resolvedCfg.Backup.ParallelDownloads)
	assert.Equal(t, "My Videos", resolvedCfg.Backup.VideosSubdir)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	isolateDirs(t)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, cfgPath, "[backup]\nparalel_downloads = 2\n")

	err := execute(t, "--config", cfgPath, "logout", "home")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestVerboseAndQuietConflict(t *testing.T) {
	isolateDirs(t)

	err := execute(t, "-v", "-q", "logout", "home")
	require.Error(t, err)
}

func TestLogout(t *testing.T) {
	isolateDirs(t)

	path := config.TokenPath("home")
	require.NotEmpty(t, path)
	writeFile(t, path, "{}")

	require.NoError(t, execute(t, "-q", "logout", "home"))

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// A second logout has nothing to remove and still succeeds.
	require.NoError(t, execute(t, "-q", "logout", "home"))
}

func TestBackup_RequiresCredentials(t *testing.T) {
	isolateDirs(t)
	t.Setenv(config.EnvClientID, "")
	t.Setenv(config.EnvClientSecret, "")

	err := execute(t, "-q", "backup", "home", "Jane Doe", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestBackup_HTTPSRedirectWithoutCertificate(t *testing.T) {
	isolateDirs(t)
	t.Setenv(config.EnvClientID, "cid")
	t.Setenv(config.EnvClientSecret, "secret")
	t.Setenv(config.EnvRedirectURI, "")
	t.Setenv(config.EnvCertFile, "")

	out := filepath.Join(t.TempDir(), "out")

	err := execute(t, "-q", "backup", "home", "Jane Doe", out)
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "auth.cert_file")

	_, statErr := os.Stat(out)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "rejected before touching the output directory")
}

func TestBackup_ArgCount(t *testing.T) {
	isolateDirs(t)

	require.Error(t, execute(t, "backup", "home"))
}

func TestRemoveDuplicates(t *testing.T) {
	isolateDirs(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2020", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "2020 copy", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "2021", "b.jpg"), "other")

	require.NoError(t, execute(t, "-q", "remove-duplicates", "--dry-run", dir))

	_, err := os.Stat(filepath.Join(dir, "2020 copy", "a.jpg"))
	require.NoError(t, err, "dry run keeps files")

	require.NoError(t, execute(t, "-q", "remove-duplicates", "--ssd", dir))

	_, err = os.Stat(filepath.Join(dir, "2020 copy"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(dir, "2020", "a.jpg"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "2021", "b.jpg"))
	require.NoError(t, err)
}

func TestRemoveDuplicates_UnreadableFileRemovesNothing(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}

	isolateDirs(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2020", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "2020 copy", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "2021", "locked.jpg"), "secret")

	locked := filepath.Join(dir, "2021", "locked.jpg")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	err := execute(t, "-q", "remove-duplicates", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 files failed")

	for _, p := range []string{"2020/a.jpg", "2020 copy/a.jpg"} {
		_, statErr := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		assert.NoError(t, statErr, p)
	}
}

func TestFindDuplicates_CleanOnlyWhenAsked(t *testing.T) {
	isolateDirs(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "y", "a.jpg"), "same")
	writeFile(t, filepath.Join(dir, "y", "b.jpg"), "same")

	require.NoError(t, execute(t, "-q", "find-duplicates", dir))

	_, err := os.Stat(filepath.Join(dir, "y", "a.jpg"))
	require.NoError(t, err)

	require.NoError(t, execute(t, "-q", "find-duplicates", "--clean", dir))

	_, err = os.Stat(filepath.Join(dir, "y", "a.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(dir, "y", "b.jpg"))
	require.NoError(t, err, "same content under another name is not a duplicate here")
}

func TestRemoveDuplicates_NotADirectory(t *testing.T) {
	isolateDirs(t)

	file := filepath.Join(t.TempDir(), "f")
	writeFile(t, file, "x")

	err := execute(t, "remove-duplicates", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
