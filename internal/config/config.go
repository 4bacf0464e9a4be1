// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for onedrive-backup. Values are layered
// defaults -> config file -> environment -> CLI flags, and the resolved
// Config is passed explicitly to every component that needs it.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Backup  BackupConfig  `toml:"backup"`
	Dedupe  DedupeConfig  `toml:"dedupe"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// AuthConfig holds the application registration and the loopback callback
// listener settings. ClientSecret may be base64-encoded; see Secret.
type AuthConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RedirectURI     string `toml:"redirect_uri"`
	CertFile        string `toml:"cert_file"`
	KeyFile         string `toml:"key_file"`
	CallbackTimeout string `toml:"callback_timeout"`
}

// BackupConfig controls what is listed remotely and where it lands locally.
// An empty subdir disables the corresponding media rule.
type BackupConfig struct {
	Sources           []string `toml:"sources"`
	PicturesSubdir    string   `toml:"pictures_subdir"`
	VideosSubdir      string   `toml:"videos_subdir"`
	PictureExtensions []string `toml:"picture_extensions"`
	VideoExtensions   []string `toml:"video_extensions"`
	IgnoreExtensions  []string `toml:"ignore_extensions"`
	DirTemplate       string   `toml:"dir_template"`
	ParallelDownloads int      `toml:"parallel_downloads"`
}

// DedupeConfig controls duplicate detection. SSD lifts the one-at-a-time
// hashing restriction meant for spinning disks.
type DedupeConfig struct {
	SSD bool `toml:"ssd"`
}

// LoggingConfig controls log output: level and format (text or json).
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	DataTimeout string `toml:"data_timeout"`
}

// CallbackTimeoutDuration returns the parsed callback timeout. Validate has
// already rejected malformed values, so parse errors fall back to the default.
func (a *AuthConfig) CallbackTimeoutDuration() time.Duration {
	return durationOr(a.CallbackTimeout, defaultCallbackTimeout)
}

// DataTimeoutDuration returns the parsed HTTP data timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return durationOr(n.DataTimeout, defaultDataTimeout)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath        string  // --config flag (empty = use default)
	PicturesSubdir    *string // --pictures-subdir
	VideosSubdir      *string // --videos-subdir
	DirTemplate       *string // --dir-template
	ParallelDownloads *int    // --parallel
	SSD               *bool   // --ssd
}
