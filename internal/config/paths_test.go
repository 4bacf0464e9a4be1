package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, filepath.Join(appName, "config.toml")))
}

func TestXDGOverrides(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG directories only apply on Linux")
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	assert.Equal(t, filepath.Join("/xdg/config", appName), DefaultConfigDir())
	assert.Equal(t, filepath.Join("/xdg/data", appName), DefaultDataDir())
	assert.Equal(t, filepath.Join("/xdg/data", appName, "tokens", "Jane Doe.refresh-token"), TokenPath("Jane Doe"))
}

func TestXDGFallbacks(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG directories only apply on Linux")
	}

	t.Setenv("HOME", "/home/testuser")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, "/home/testuser/.config/onedrive-backup", DefaultConfigDir())
	assert.Equal(t, "/home/testuser/.local/share/onedrive-backup", DefaultDataDir())
}

func TestSanitizeAccount(t *testing.T) {
	tests := map[string]string{
		"personal":          "personal",
		"  padded  ":        "padded",
		"a/b\\c":            "a_b_c",
		"who:what?":         "who_what_",
		"tab\there":         "tab_here",
		"":                  "_",
		"..":                "__",
		"jane@example.com":  "jane@example.com",
		"Café Photos 2024":  "Café Photos 2024",
	}

	for in, want := range tests {
		assert.Equal(t, want, SanitizeAccount(in), "input %q", in)
	}
}
