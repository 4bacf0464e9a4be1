package config

import "time"

// Default values for configuration options.
const (
	defaultRedirectURI       = "https://localhost:8443"
	defaultCallbackTimeout   = 120 * time.Second
	defaultSource            = "cameraroll"
	defaultPicturesSubdir    = "My Pictures"
	defaultVideosSubdir      = "My Videos"
	defaultDirTemplate       = "{year}/{month}/{year}.{month}.{day} - {name}"
	defaultParallelDownloads = 8
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultDataTimeout       = 60 * time.Second
)

// DefaultConfig returns a Config populated with all default values.
// Credentials have no default and must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			RedirectURI:     defaultRedirectURI,
			CallbackTimeout: defaultCallbackTimeout.String(),
		},
		Backup: BackupConfig{
			Sources:           []string{defaultSource},
			PicturesSubdir:    defaultPicturesSubdir,
			VideosSubdir:      defaultVideosSubdir,
			PictureExtensions: []string{".jpg", ".jpeg", ".heic", ".png"},
			VideoExtensions:   []string{".avi", ".mp4", ".mov"},
			IgnoreExtensions:  []string{".thm"},
			DirTemplate:       defaultDirTemplate,
			ParallelDownloads: defaultParallelDownloads,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			DataTimeout: defaultDataTimeout.String(),
		},
	}
}
