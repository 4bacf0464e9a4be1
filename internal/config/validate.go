package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// Validation range constants.
const (
	minParallelDownloads = 1
	maxParallelDownloads = 64
	minCallbackTimeout   = 5 * time.Second
	minDataTimeout       = 5 * time.Second
)

// ErrMissingCredentials is returned by ValidateAuth when the application
// registration is incomplete.
var ErrMissingCredentials = errors.New("missing credentials")

// templatePlaceholder matches {…} groups in a directory template.
var templatePlaceholder = regexp.MustCompile(`\{[^{}]*\}`)

// allowedPlaceholders are the placeholders understood by the planner.
var allowedPlaceholders = map[string]bool{
	"{year}": true, "{month}": true, "{day}": true, "{name}": true,
	"{month:02d}": true, "{day:02d}": true,
}

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass. Credentials are checked
// separately by ValidateAuth because only the backup command needs them.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAuthSettings(&cfg.Auth)...)
	errs = append(errs, validateBackup(&cfg.Backup)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateAuth checks that everything needed to talk to the identity
// platform is present and that the client secret decodes.
func ValidateAuth(a *AuthConfig) error {
	var errs []error

	if a.ClientID == "" {
		errs = append(errs, fmt.Errorf("auth.client_id: %w (set it in the config file or %s)", ErrMissingCredentials, EnvClientID))
	}

	if a.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("auth.client_secret: %w (set it in the config file or %s)", ErrMissingCredentials, EnvClientSecret))
	} else if _, err := a.Secret(); err != nil {
		errs = append(errs, fmt.Errorf("auth.client_secret: %w", err))
	}

	if a.RedirectURI == "" {
		errs = append(errs, fmt.Errorf("auth.redirect_uri: %w", ErrMissingCredentials))
	} else if u, err := url.Parse(a.RedirectURI); err == nil && u.Scheme == "https" && a.CertFile == "" {
		errs = append(errs, fmt.Errorf("auth.cert_file: %w: an https redirect URI needs a certificate for the callback listener (set it in the config file or %s)",
			ErrMissingCredentials, EnvCertFile))
	}

	return errors.Join(errs...)
}

// Secret returns the client secret, base64-decoding it when it ends in "=".
func (a *AuthConfig) Secret() (string, error) {
	if !strings.HasSuffix(a.ClientSecret, "=") {
		return a.ClientSecret, nil
	}

	raw, err := base64.StdEncoding.DecodeString(a.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("decoding base64 client secret: %w", err)
	}

	return string(raw), nil
}

func validateAuthSettings(a *AuthConfig) []error {
	var errs []error

	if a.RedirectURI != "" {
		u, err := url.Parse(a.RedirectURI)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("auth.redirect_uri: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("auth.redirect_uri: scheme must be http or https, got %q", u.Scheme))
		case u.Hostname() == "":
			errs = append(errs, fmt.Errorf("auth.redirect_uri: missing host in %q", a.RedirectURI))
		}
	}

	for name, path := range map[string]string{"auth.cert_file": a.CertFile, "auth.key_file": a.KeyFile} {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if a.KeyFile != "" && a.CertFile == "" {
		errs = append(errs, errors.New("auth.key_file: requires auth.cert_file"))
	}

	if err := validateDuration("auth.callback_timeout", a.CallbackTimeout, minCallbackTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateBackup(b *BackupConfig) []error {
	var errs []error

	if len(b.Sources) == 0 {
		errs = append(errs, errors.New("backup.sources: at least one source folder is required"))
	}

	for _, s := range b.Sources {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("backup.sources: empty source name"))
		}
	}

	if b.PicturesSubdir == "" && b.VideosSubdir == "" {
		errs = append(errs, errors.New("backup: pictures_subdir and videos_subdir are both empty, nothing would be backed up"))
	}

	for name, exts := range map[string][]string{
		"backup.picture_extensions": b.PictureExtensions,
		"backup.video_extensions":   b.VideoExtensions,
		"backup.ignore_extensions":  b.IgnoreExtensions,
	} {
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
				errs = append(errs, fmt.Errorf("%s: %q must start with a dot", name, ext))
			}
		}
	}

	if err := ValidateTemplate(b.DirTemplate); err != nil {
		errs = append(errs, fmt.Errorf("backup.dir_template: %w", err))
	}

	if b.ParallelDownloads < minParallelDownloads || b.ParallelDownloads > maxParallelDownloads {
		errs = append(errs, fmt.Errorf("backup.parallel_downloads: must be between %d and %d, got %d",
			minParallelDownloads, maxParallelDownloads, b.ParallelDownloads))
	}

	return errs
}

// ValidateTemplate rejects empty templates, unknown placeholders, unbalanced
// braces, and templates that could escape the output directory.
func ValidateTemplate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return errors.New("must not be empty")
	}

	for _, ph := range templatePlaceholder.FindAllString(tmpl, -1) {
		if !allowedPlaceholders[ph] {
			return fmt.Errorf("unknown placeholder %s (valid: {year} {month} {day} {name})", ph)
		}
	}

	if rest := templatePlaceholder.ReplaceAllString(tmpl, ""); strings.ContainsAny(rest, "{}") {
		return fmt.Errorf("unbalanced braces in %q", tmpl)
	}

	if strings.HasPrefix(tmpl, "/") {
		return fmt.Errorf("must be relative, got %q", tmpl)
	}

	for _, seg := range strings.Split(tmpl, "/") {
		if seg == ".." {
			return fmt.Errorf("must not contain '..' segments, got %q", tmpl)
		}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch strings.ToLower(l.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: must be debug, info, warn, or error, got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: must be text or json, got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	if err := validateDuration("network.data_timeout", n.DataTimeout, minDataTimeout); err != nil {
		return []error{err}
	}

	return nil
}

func validateDuration(field, raw string, minimum time.Duration) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", field, minimum, d)
	}

	return nil
}
